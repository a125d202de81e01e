package main

import (
	"github.com/seantiz/polyglot/internal/engine"
	"github.com/seantiz/polyglot/internal/engine/glossary"
	"github.com/seantiz/polyglot/internal/engine/openai"
	"github.com/seantiz/polyglot/internal/worker"
)

// builtinEngines is the engine table shared by the server and the worker
// child. Both sides must agree on it, so it lives here and nowhere else.
func builtinEngines() *engine.Registry {
	reg := engine.NewRegistry()
	reg.Register(engine.Entry{
		Name:        engine.IdentityModel,
		CodeSet:     "iso639",
		Description: "Returns the input text unchanged",
		Host:        worker.Bind[struct{}](engine.Identity{}),
	})
	reg.Register(glossary.Entry())
	reg.Register(openai.Entry())
	return reg
}
