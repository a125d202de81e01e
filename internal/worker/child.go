package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"
)

// maxResultSize leaves room for the response envelope inside one frame.
const maxResultSize = MaxMessageSize - 4<<10

// Lookup resolves a model identifier to its engine.
type Lookup func(model string) (Host, bool)

// Child runs the child side of a Worker: it builds the resource once and then
// answers commands until the parent closes the channel.
type Child struct {
	Lookup Lookup

	// NewLogger builds the child's logger once the config is known. Nil
	// discards logs.
	NewLogger func(cfg Config) *slog.Logger
}

// Serve reads the Hello frame from in, initializes the engine, and serves
// requests until in reaches EOF. Every request gets exactly one response on out.
func (c *Child) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)

	var hello Hello
	if err := ReadMessage(r, &hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	cfg := hello.Config
	logger := slog.New(slog.DiscardHandler)
	if c.NewLogger != nil {
		logger = c.NewLogger(cfg)
	}

	status, err := openStatus(hello.StatusPath)
	if err != nil {
		c.refuse(out, err)
		return err
	}
	defer status.close(false)

	sess, err := c.boot(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "initialize engine", "model", cfg.Model, "error", err)
		c.refuse(out, err)
		return fmt.Errorf("initialize %s: %w", cfg.Model, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.WarnContext(ctx, "close resource", "model", cfg.Model, "error", err)
		}
	}()

	if err := WriteMessage(out, &Response{Kind: KindReady}); err != nil {
		return fmt.Errorf("write ready: %w", err)
	}
	logger.InfoContext(ctx, "worker ready", "model", cfg.Model, "device", cfg.Device)

	for {
		var req Request
		if err := ReadMessage(r, &req); err != nil {
			if errors.Is(err, io.EOF) {
				logger.InfoContext(ctx, "channel closed, worker exiting", "model", cfg.Model)
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		resp := c.dispatch(ctx, sess, status, req, logger)
		if err := writeResponse(out, &resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

func (c *Child) boot(cfg Config) (sess Session, err error) {
	host, ok := c.Lookup(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("unsupported model name: %q", cfg.Model)
	}
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return host.Boot(cfg)
}

func (c *Child) refuse(out io.Writer, err error) {
	_ = WriteMessage(out, &Response{Kind: KindError, Error: newRemoteError(RemoteInit, err)})
}

// dispatch runs one command with the processing flag raised. The flag is
// lowered on every exit path before the response is written.
func (c *Child) dispatch(ctx context.Context, sess Session, status *sharedStatus, req Request, logger *slog.Logger) Response {
	if err := status.lock(); err != nil {
		return Response{Kind: KindError, Error: newRemoteError(RemoteEngine, err)}
	}
	if status.state() == stateDraining {
		status.unlock()
		return Response{Kind: KindError, Error: &RemoteError{
			Kind:    RemoteNotRunning,
			Type:    "draining",
			Message: "worker is stopping",
		}}
	}
	status.set(stateProcessing)
	status.unlock()

	defer func() {
		if err := status.lock(); err != nil {
			logger.ErrorContext(ctx, "reset processing flag", "error", err)
			return
		}
		if status.state() == stateProcessing {
			status.set(stateIdle)
		}
		status.unlock()
	}()

	result, err := invoke(ctx, sess, Command{Name: req.Command, Args: req.Args})
	if err != nil {
		kind := RemoteEngine
		var perr *panicError
		if errors.As(err, &perr) {
			kind = RemotePanic
		}
		logger.ErrorContext(ctx, "command failed", "command", req.Command, "error", err)
		return Response{Kind: KindError, Error: newRemoteError(kind, err)}
	}

	data, err := msgpack.Marshal(result)
	if err != nil {
		return Response{Kind: KindError, Error: newRemoteError(RemoteEngine, fmt.Errorf("encode result: %w", err))}
	}
	if len(data) > maxResultSize {
		err := fmt.Errorf("%w: result of %d bytes exceeds maximum %d", ErrMessageTooLarge, len(data), maxResultSize)
		logger.ErrorContext(ctx, "command failed", "command", req.Command, "error", err)
		return Response{Kind: KindError, Error: newRemoteError(RemoteEngine, err)}
	}
	return Response{Kind: KindResult, Result: data}
}

// writeResponse sends resp. A response too large for one frame is replaced by
// a short engine error so the request still gets its single reply.
func writeResponse(out io.Writer, resp *Response) error {
	err := WriteMessage(out, resp)
	if !errors.Is(err, ErrMessageTooLarge) {
		return err
	}
	return WriteMessage(out, &Response{Kind: KindError, Error: &RemoteError{
		Kind:    RemoteEngine,
		Type:    "size",
		Message: fmt.Sprintf("response exceeds maximum frame size %d", MaxMessageSize),
	}})
}

func invoke(ctx context.Context, sess Session, cmd Command) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return sess.Handle(ctx, cmd)
}
