package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/seantiz/polyglot/internal/worker"
)

// helperEnv makes the test binary act as a worker child instead of running tests.
const helperEnv = "POLYGLOT_WORKER_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		child := worker.Child{Lookup: lookupTestEngine}
		if err := child.Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	goleak.VerifyTestMain(m)
}

func lookupTestEngine(model string) (worker.Host, bool) {
	switch model {
	case "test":
		return worker.Bind[*counter](testEngine{}), true
	case "broken":
		return worker.Bind[*counter](brokenEngine{}), true
	}
	return nil, false
}

// counter is the test resource; it survives across commands in one child.
type counter struct {
	calls int
}

type testEngine struct{}

func (testEngine) Initialize(cfg worker.Config) (*counter, error) {
	return &counter{}, nil
}

func (testEngine) Handle(_ context.Context, cmd worker.Command, res *counter, cfg worker.Config) (any, error) {
	res.calls++
	switch cmd.Name {
	case "echo":
		var s string
		if err := cmd.Decode(&s); err != nil {
			return nil, err
		}
		return s, nil
	case "config":
		return cfg, nil
	case "count":
		return res.calls, nil
	case "sleep":
		var ms int
		if err := cmd.Decode(&ms); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return "slept", nil
	case "big":
		var n int
		if err := cmd.Decode(&n); err != nil {
			return nil, err
		}
		return strings.Repeat("x", n), nil
	case "shout":
		var n int
		if err := cmd.Decode(&n); err != nil {
			return nil, err
		}
		fmt.Fprintln(os.Stderr, strings.Repeat("y", n))
		return "shouted", nil
	case "say":
		fmt.Fprintln(os.Stderr, "short line")
		return "said", nil
	case "fail":
		return nil, errors.New("boom")
	case "panic":
		panic("kaboom")
	}
	return nil, fmt.Errorf("unknown command %q", cmd.Name)
}

type brokenEngine struct{}

func (brokenEngine) Initialize(worker.Config) (*counter, error) {
	return nil, errors.New("cannot load resource")
}

func (brokenEngine) Handle(context.Context, worker.Command, *counter, worker.Config) (any, error) {
	return nil, nil
}

func newTestWorker(t *testing.T, model string, opts ...worker.Option) *worker.Worker {
	t.Helper()
	base := []worker.Option{
		worker.WithCommand(os.Args[0], "-test.run=^$"),
		worker.WithEnv(helperEnv + "=1"),
		worker.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		worker.WithStatusDir(t.TempDir()),
	}
	w := worker.New(worker.Config{
		Device:      "cpu",
		Model:       model,
		StoragePath: t.TempDir(),
		LogLevel:    "debug",
	}, append(base, opts...)...)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}
