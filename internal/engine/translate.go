package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/seantiz/polyglot/internal/config"
	"github.com/seantiz/polyglot/internal/worker"
)

// CommandTranslate is the only command translation engines serve.
const CommandTranslate = "translate"

// ErrUnknownCommand is returned by engines for commands they do not serve.
var ErrUnknownCommand = errors.New("unknown command")

// TranslateArgs are the arguments of the translate command. Languages are
// engine-specific codes.
type TranslateArgs struct {
	Text   string         `msgpack:"text"`
	Source string         `msgpack:"source"`
	Target string         `msgpack:"target"`
	Params map[string]any `msgpack:"params"`
}

// Dispatch decodes a translate command and runs fn on its arguments. Any
// other command is rejected with ErrUnknownCommand.
func Dispatch(cmd worker.Command, fn func(TranslateArgs) (string, error)) (any, error) {
	if cmd.Name != CommandTranslate {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	var args TranslateArgs
	if err := cmd.Decode(&args); err != nil {
		return nil, fmt.Errorf("decode translate args: %w", err)
	}
	return fn(args)
}

// TranslationWorker is a worker whose child serves the translate command.
type TranslationWorker struct {
	*worker.Worker
}

// Translate runs one translation in the child process.
func (t *TranslationWorker) Translate(ctx context.Context, text, source, target string, params map[string]any) (string, error) {
	var out string
	args := TranslateArgs{Text: text, Source: source, Target: target, Params: params}
	if err := t.Call(ctx, CommandTranslate, args, &out); err != nil {
		return "", err
	}
	return out, nil
}

// Factory builds translation workers for registered engines.
type Factory struct {
	registry *Registry
	opts     []worker.Option
}

// NewFactory returns a factory over reg. opts are applied to every worker.
func NewFactory(reg *Registry, opts ...worker.Option) *Factory {
	return &Factory{registry: reg, opts: opts}
}

// Create returns a stopped worker for cfg.ModelName bound to the worker
// configuration derived from cfg. An unregistered model fails with
// ErrUnsupportedModel.
func (f *Factory) Create(cfg config.Config) (*TranslationWorker, error) {
	if _, err := f.registry.Resolve(cfg.ModelName); err != nil {
		return nil, err
	}
	return &TranslationWorker{Worker: worker.New(cfg.WorkerConfig(), f.opts...)}, nil
}
