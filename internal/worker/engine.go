package worker

import (
	"context"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Config is the immutable configuration a Worker hands to its child process.
type Config struct {
	Device      string `msgpack:"device" json:"device"`
	Model       string `msgpack:"model" json:"model"`
	StoragePath string `msgpack:"storage_path" json:"storage_path"`
	LogLevel    string `msgpack:"log_level" json:"log_level"`
}

// Command is a single request as seen by an engine.
type Command struct {
	Name string
	Args msgpack.RawMessage
}

// Decode unmarshals the command arguments into v.
func (c Command) Decode(v any) error {
	return msgpack.Unmarshal(c.Args, v)
}

// Engine is implemented by each concrete resource host. Initialize runs once
// inside the child before any command is accepted. Handle runs for every
// command; the dispatch loop sends its result or error as the one reply.
type Engine[R any] interface {
	Initialize(cfg Config) (R, error)
	Handle(ctx context.Context, cmd Command, res R, cfg Config) (any, error)
}

// Host is the type-erased form of an Engine kept in engine tables.
type Host interface {
	Boot(cfg Config) (Session, error)
}

// Session is an initialized engine bound to its resource.
type Session interface {
	Handle(ctx context.Context, cmd Command) (any, error)
	Close() error
}

// Bind erases the resource type of e.
func Bind[R any](e Engine[R]) Host {
	return binding[R]{engine: e}
}

type binding[R any] struct {
	engine Engine[R]
}

func (b binding[R]) Boot(cfg Config) (Session, error) {
	res, err := b.engine.Initialize(cfg)
	if err != nil {
		return nil, err
	}
	return &session[R]{engine: b.engine, res: res, cfg: cfg}, nil
}

type session[R any] struct {
	engine Engine[R]
	res    R
	cfg    Config
}

func (s *session[R]) Handle(ctx context.Context, cmd Command) (any, error) {
	return s.engine.Handle(ctx, cmd, s.res, s.cfg)
}

// Close releases the resource if it holds anything closable.
func (s *session[R]) Close() error {
	if c, ok := any(s.res).(io.Closer); ok {
		return c.Close()
	}
	return nil
}
