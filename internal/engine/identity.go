package engine

import (
	"context"

	"github.com/seantiz/polyglot/internal/worker"
)

// IdentityModel is the model identifier of the pass-through engine.
const IdentityModel = "identity"

// Identity returns its input unchanged. It holds no resource and is used for
// smoke tests and dry runs of the worker lifecycle.
type Identity struct{}

func (Identity) Initialize(worker.Config) (struct{}, error) {
	return struct{}{}, nil
}

func (Identity) Handle(_ context.Context, cmd worker.Command, _ struct{}, _ worker.Config) (any, error) {
	return Dispatch(cmd, func(args TranslateArgs) (string, error) {
		return args.Text, nil
	})
}
