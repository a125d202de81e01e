// Package engine holds the table of translation engines and the factory that
// turns a configured model identifier into a worker whose child process runs
// that engine. Concrete engines live in subpackages; the identity engine is
// defined here.
package engine
