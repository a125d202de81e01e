package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned when a command is issued to a worker whose
	// child process is not alive. The channel is not touched.
	ErrNotRunning = errors.New("worker is not running")

	// ErrEngine matches every error raised by an engine inside the child.
	ErrEngine = errors.New("engine error")

	// ErrInitialize is returned by the first command when the child could not
	// build its resource.
	ErrInitialize = errors.New("worker initialization failed")

	// ErrChannelClosed is returned when the child went away mid round-trip.
	ErrChannelClosed = errors.New("worker channel closed")

	// ErrShutdownTimeout is logged when the child did not exit within the
	// grace period and had to be killed.
	ErrShutdownTimeout = errors.New("worker shutdown timed out")

	// ErrMessageTooLarge is returned when a frame would exceed MaxMessageSize.
	// Nothing is written to the channel in that case.
	ErrMessageTooLarge = errors.New("message too large")
)

// Remote error kinds.
const (
	RemoteEngine     = "engine"
	RemotePanic      = "panic"
	RemoteNotRunning = "not_running"
	RemoteInit       = "init"
)

// RemoteError is an error produced in the child and shipped to the parent as
// channel data.
type RemoteError struct {
	Kind    string `msgpack:"kind"`
	Type    string `msgpack:"type"`
	Message string `msgpack:"message"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is lets callers match remote errors against the package sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotRunning:
		return e.Kind == RemoteNotRunning
	case ErrInitialize:
		return e.Kind == RemoteInit
	case ErrEngine:
		return e.Kind == RemoteEngine || e.Kind == RemotePanic
	}
	return false
}

func newRemoteError(kind string, err error) *RemoteError {
	return &RemoteError{
		Kind:    kind,
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
