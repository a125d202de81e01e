// Package openai implements a translation engine backed by an OpenAI
// compatible chat completion endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/seantiz/polyglot/internal/engine"
	"github.com/seantiz/polyglot/internal/worker"
)

// Model is the identifier of this engine.
const Model = "openai"

// Environment variables read by the child process.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "OPENAI_BASE_URL"
	EnvModel   = "OPENAI_MODEL"

	DefaultChatModel = "gpt-4o-mini"
)

var (
	// ErrMissingAPIKey is returned by Initialize when no API key is set.
	ErrMissingAPIKey = errors.New(EnvAPIKey + " is not set")

	// ErrEmptyResponse is returned when the completion has no choices.
	ErrEmptyResponse = errors.New("completion returned no choices")
)

const systemPrompt = "You are a translation engine. Translate the user's text from %s to %s. " +
	"Reply with the translation only, preserving formatting and punctuation."

// Entry is the engine table row for the openai engine.
func Entry() engine.Entry {
	return engine.Entry{
		Name:        Model,
		CodeSet:     "names",
		Description: "Chat completion translation via " + EnvBaseURL + " (default api.openai.com)",
		Host:        worker.Bind[*Client](Engine{}),
	}
}

// Client is the engine resource: an API client bound to one chat model.
type Client struct {
	api   *goopenai.Client
	model string
}

// NewClient returns a client for baseURL. An empty baseURL uses the public API.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = DefaultChatModel
	}
	return &Client{api: goopenai.NewClientWithConfig(cfg), model: model}
}

// Translate asks the model for a translation of text.
func (c *Client) Translate(ctx context.Context, args engine.TranslateArgs) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, args.Source, args.Target)},
			{Role: goopenai.ChatMessageRoleUser, Content: args.Text},
		},
	}

	if v, ok, err := engine.Float(args.Params, "temperature"); err != nil {
		return "", err
	} else if ok {
		req.Temperature = float32(v)
	}
	if v, ok, err := engine.Float(args.Params, "top_p"); err != nil {
		return "", err
	} else if ok {
		req.TopP = float32(v)
	}
	if v, ok, err := engine.Int(args.Params, "max_tokens"); err != nil {
		return "", err
	} else if ok {
		req.MaxTokens = v
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Engine builds its client from the child's environment. Getenv defaults
// to os.Getenv.
type Engine struct {
	Getenv func(string) string
}

func (e Engine) getenv(key string) string {
	if e.Getenv != nil {
		return e.Getenv(key)
	}
	return os.Getenv(key)
}

func (e Engine) Initialize(worker.Config) (*Client, error) {
	key := e.getenv(EnvAPIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	return NewClient(key, e.getenv(EnvBaseURL), e.getenv(EnvModel)), nil
}

func (Engine) Handle(ctx context.Context, cmd worker.Command, c *Client, _ worker.Config) (any, error) {
	return engine.Dispatch(cmd, func(args engine.TranslateArgs) (string, error) {
		return c.Translate(ctx, args)
	})
}
