package worker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/polyglot/internal/worker"
)

func TestStartTwiceSpawnsOneProcess(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")

	require.NoError(t, w.Start())
	pid := w.Pid()
	require.NotZero(t, pid)

	require.NoError(t, w.Start())
	require.Equal(t, pid, w.Pid())
	require.True(t, w.IsAlive())
}

func TestStopClearsAlive(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")

	require.NoError(t, w.Start())
	var got string
	require.NoError(t, w.Call(t.Context(), "echo", "ping", &got))

	require.NoError(t, w.Stop())
	require.False(t, w.IsAlive())
	require.False(t, w.IsProcessing())
	require.Zero(t, w.Pid())
	require.NoError(t, w.Stop())
}

func TestCallWhenStoppedFailsFast(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")

	err := w.Call(t.Context(), "echo", "ping", nil)
	require.ErrorIs(t, err, worker.ErrNotRunning)
}

func TestCallRoundTrip(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	var got string
	require.NoError(t, w.Call(t.Context(), "echo", "hola", &got))
	require.Equal(t, "hola", got)
}

func TestChildReceivesConfigVerbatim(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	var got worker.Config
	require.NoError(t, w.Call(t.Context(), "config", nil, &got))
	require.Equal(t, w.Config(), got)
}

func TestResourceBuiltOncePerProcess(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	for want := 1; want <= 3; want++ {
		var n int
		require.NoError(t, w.Call(t.Context(), "count", nil, &n))
		require.Equal(t, want, n)
	}
}

func TestProcessingFlagTracksCommand(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())
	require.NoError(t, w.Call(t.Context(), "echo", "warm", nil))
	require.False(t, w.IsProcessing())

	done := make(chan error, 1)
	go func() { done <- w.Call(context.Background(), "sleep", 400, nil) }()

	require.Eventually(t, w.IsProcessing, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, <-done)
	require.False(t, w.IsProcessing())
}

func TestHandlerErrorIsReturnedAndWorkerSurvives(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	err := w.Call(t.Context(), "fail", nil, nil)
	require.ErrorIs(t, err, worker.ErrEngine)

	var remote *worker.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "boom", remote.Message)
	require.Equal(t, worker.RemoteEngine, remote.Kind)

	require.True(t, w.IsAlive())
	var got string
	require.NoError(t, w.Call(t.Context(), "echo", "still here", &got))
	require.Equal(t, "still here", got)
}

func TestOversizedResultIsEngineErrorAndWorkerSurvives(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	err := w.Call(t.Context(), "big", worker.MaxMessageSize, nil)
	require.ErrorIs(t, err, worker.ErrEngine)
	require.NotErrorIs(t, err, worker.ErrChannelClosed)
	require.ErrorContains(t, err, "exceeds maximum")

	require.True(t, w.IsAlive())
	require.False(t, w.IsProcessing())
	var got string
	require.NoError(t, w.Call(t.Context(), "echo", "still here", &got))
	require.Equal(t, "still here", got)
}

func TestOversizedRequestLeavesChannelIntact(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	err := w.Call(t.Context(), "echo", strings.Repeat("z", worker.MaxMessageSize), nil)
	require.ErrorIs(t, err, worker.ErrMessageTooLarge)
	require.NotErrorIs(t, err, worker.ErrChannelClosed)

	require.True(t, w.IsAlive())
	var got string
	require.NoError(t, w.Call(t.Context(), "echo", "small", &got))
	require.Equal(t, "small", got)
}

func TestOverlongLogLineDoesNotKillChild(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	require.NoError(t, w.Call(t.Context(), "shout", 2<<20, nil))
	for range 20 {
		require.NoError(t, w.Call(t.Context(), "say", nil, nil))
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, w.IsAlive())
}

func TestHandlerPanicIsCaptured(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	err := w.Call(t.Context(), "panic", nil, nil)
	require.ErrorIs(t, err, worker.ErrEngine)
	require.ErrorContains(t, err, "kaboom")
	require.True(t, w.IsAlive())
	require.False(t, w.IsProcessing())
}

func TestUnknownCommandIsEngineError(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	err := w.Call(t.Context(), "nope", nil, nil)
	require.ErrorIs(t, err, worker.ErrEngine)
	require.ErrorContains(t, err, `unknown command "nope"`)
}

func TestInitializeFailure(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "broken")
	require.NoError(t, w.Start())

	err := w.Call(t.Context(), "echo", "x", nil)
	require.ErrorIs(t, err, worker.ErrInitialize)
	require.ErrorContains(t, err, "cannot load resource")
	require.Eventually(t, func() bool { return !w.IsAlive() }, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownModelFailsInitialization(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "missing")
	require.NoError(t, w.Start())

	err := w.Call(t.Context(), "echo", "x", nil)
	require.ErrorIs(t, err, worker.ErrInitialize)
	require.ErrorContains(t, err, `"missing"`)
}

func TestStopDuringCallBreaksChannel(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test", worker.WithGracePeriod(100*time.Millisecond))
	require.NoError(t, w.Start())

	done := make(chan error, 1)
	go func() { done <- w.Call(context.Background(), "sleep", 10_000, nil) }()
	require.Eventually(t, w.IsProcessing, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	require.False(t, w.IsAlive())

	select {
	case err := <-done:
		require.ErrorIs(t, err, worker.ErrChannelClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight call did not return after stop")
	}
}

func TestStopIfIdle(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	done := make(chan error, 1)
	go func() { done <- w.Call(context.Background(), "sleep", 300, nil) }()
	require.Eventually(t, w.IsProcessing, 2*time.Second, 5*time.Millisecond)

	stopped, err := w.StopIfIdle()
	require.NoError(t, err)
	require.False(t, stopped)
	require.True(t, w.IsAlive())

	require.NoError(t, <-done)

	stopped, err = w.StopIfIdle()
	require.NoError(t, err)
	require.True(t, stopped)
	require.False(t, w.IsAlive())
}

func TestExternalKillMarksWorkerDead(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())
	require.NoError(t, w.Call(t.Context(), "echo", "x", nil))

	done := make(chan error, 1)
	go func() { done <- w.Call(context.Background(), "sleep", 5000, nil) }()
	require.Eventually(t, w.IsProcessing, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, syscall.Kill(w.Pid(), syscall.SIGKILL))
	require.ErrorIs(t, <-done, worker.ErrChannelClosed)
	require.Eventually(t, func() bool { return !w.IsAlive() }, 2*time.Second, 10*time.Millisecond)
	require.False(t, w.IsProcessing())
	require.ErrorIs(t, w.Call(t.Context(), "echo", "x", nil), worker.ErrNotRunning)

	require.NoError(t, w.Start())
	require.True(t, w.IsAlive())
	var got string
	require.NoError(t, w.Call(t.Context(), "echo", "again", &got))
	require.Equal(t, "again", got)
}

func TestConcurrentCallsGetTheirOwnReplies(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			want := fmt.Sprintf("msg-%d", i)
			var got string
			if err := w.Call(context.Background(), "echo", want, &got); err != nil {
				return err
			}
			if got != want {
				return errors.New("reply " + got + " does not match " + want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestCallHonorsContextWhileQueued(t *testing.T) {
	t.Parallel()
	w := newTestWorker(t, "test")
	require.NoError(t, w.Start())

	done := make(chan error, 1)
	go func() { done <- w.Call(context.Background(), "sleep", 300, nil) }()
	require.Eventually(t, w.IsProcessing, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, w.Call(ctx, "echo", "late", nil), context.DeadlineExceeded)
	require.NoError(t, <-done)
}
