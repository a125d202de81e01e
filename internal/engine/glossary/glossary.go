// Package glossary implements a phrase-table translation engine. The table is
// loaded once from a SQLite database under the model storage path and kept in
// memory by the worker child for its whole life.
package glossary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/seantiz/polyglot/internal/engine"
	"github.com/seantiz/polyglot/internal/worker"
)

// Model is the identifier of this engine.
const Model = "glossary"

const (
	defaultMaxPhraseWords = 4

	UnknownKeep = "keep"
	UnknownMark = "mark"
)

// ErrNoEntries is returned when the table has nothing for a language pair.
var ErrNoEntries = errors.New("no glossary entries for language pair")

// Entry is the engine table row for the glossary engine.
func Entry() engine.Entry {
	return engine.Entry{
		Name:        Model,
		CodeSet:     "iso639",
		Description: "Phrase table lookup backed by " + DatabaseFile,
		Host:        worker.Bind[*Table](Engine{}),
	}
}

// Engine loads the phrase table as its resource.
type Engine struct{}

func (Engine) Initialize(cfg worker.Config) (*Table, error) {
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	st, err := Open(filepath.Join(cfg.StoragePath, DatabaseFile))
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Load(context.Background())
}

func (Engine) Handle(_ context.Context, cmd worker.Command, tbl *Table, _ worker.Config) (any, error) {
	return engine.Dispatch(cmd, func(args engine.TranslateArgs) (string, error) {
		opts, err := ParseOptions(args.Params)
		if err != nil {
			return "", err
		}
		return tbl.Translate(args.Text, args.Source, args.Target, opts)
	})
}

// Options control a single lookup.
type Options struct {
	CaseSensitive  bool
	MaxPhraseWords int
	Unknown        string
}

// ParseOptions reads case_sensitive, max_phrase_words and unknown from the
// generation parameters.
func ParseOptions(params map[string]any) (Options, error) {
	opts := Options{MaxPhraseWords: defaultMaxPhraseWords, Unknown: UnknownKeep}

	if v, ok, err := engine.Bool(params, "case_sensitive"); err != nil {
		return opts, err
	} else if ok {
		opts.CaseSensitive = v
	}

	if v, ok, err := engine.Int(params, "max_phrase_words"); err != nil {
		return opts, err
	} else if ok {
		if v < 1 {
			return opts, fmt.Errorf("%w: max_phrase_words must be at least 1", engine.ErrInvalidParameter)
		}
		opts.MaxPhraseWords = v
	}

	if v, ok, err := engine.String(params, "unknown"); err != nil {
		return opts, err
	} else if ok {
		if v != UnknownKeep && v != UnknownMark {
			return opts, fmt.Errorf("%w: unknown must be %q or %q", engine.ErrInvalidParameter, UnknownKeep, UnknownMark)
		}
		opts.Unknown = v
	}

	return opts, nil
}

type pair struct {
	source, target string
}

type phrases struct {
	exact  map[string]string
	folded map[string]string
}

// Table maps normalized source phrases to translations per language pair.
type Table struct {
	pairs map[pair]*phrases
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{pairs: make(map[pair]*phrases)}
}

// Add records a phrase. Later additions for the same phrase win.
func (t *Table) Add(sourceLang, targetLang, source, target string) {
	key := normalize(source)
	if key == "" {
		return
	}
	p := pair{sourceLang, targetLang}
	ph, ok := t.pairs[p]
	if !ok {
		ph = &phrases{exact: make(map[string]string), folded: make(map[string]string)}
		t.pairs[p] = ph
	}
	ph.exact[key] = target
	ph.folded[strings.ToLower(key)] = target
}

// Len returns the number of phrases for a language pair.
func (t *Table) Len(sourceLang, targetLang string) int {
	if ph, ok := t.pairs[pair{sourceLang, targetLang}]; ok {
		return len(ph.exact)
	}
	return 0
}

// Translate replaces the longest known phrase at each word position, left to
// right. Punctuation and spacing between phrases are preserved.
func (t *Table) Translate(text, sourceLang, targetLang string, opts Options) (string, error) {
	ph, ok := t.pairs[pair{sourceLang, targetLang}]
	if !ok || len(ph.exact) == 0 {
		return "", fmt.Errorf("%w: %s -> %s", ErrNoEntries, sourceLang, targetLang)
	}
	if opts.MaxPhraseWords < 1 {
		opts.MaxPhraseWords = defaultMaxPhraseWords
	}

	toks := tokenize(text)
	var out strings.Builder
	out.Grow(len(text))

	for i := 0; i < len(toks); {
		if !toks[i].word {
			out.WriteString(toks[i].text)
			i++
			continue
		}

		matched := false
		for n := opts.MaxPhraseWords; n >= 1; n-- {
			words, end, ok := span(toks, i, n)
			if !ok {
				continue
			}
			target, ok := ph.lookup(strings.Join(words, " "), opts.CaseSensitive)
			if !ok {
				continue
			}
			if !opts.CaseSensitive {
				target = matchCase(words, target)
			}
			out.WriteString(target)
			i = end
			matched = true
			break
		}
		if matched {
			continue
		}

		if opts.Unknown == UnknownMark {
			out.WriteString("[" + toks[i].text + "]")
		} else {
			out.WriteString(toks[i].text)
		}
		i++
	}

	return out.String(), nil
}

func (p *phrases) lookup(key string, caseSensitive bool) (string, bool) {
	if caseSensitive {
		v, ok := p.exact[key]
		return v, ok
	}
	v, ok := p.folded[strings.ToLower(key)]
	return v, ok
}

type token struct {
	text string
	word bool
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '\'' || r == '-'
}

func tokenize(s string) []token {
	var toks []token
	start := 0
	inWord := false
	for i, r := range s {
		w := isWordRune(r)
		if i == 0 {
			inWord = w
			continue
		}
		if w != inWord {
			toks = append(toks, token{text: s[start:i], word: inWord})
			start = i
			inWord = w
		}
	}
	if start < len(s) {
		toks = append(toks, token{text: s[start:], word: inWord})
	}
	return toks
}

// span collects n words starting at toks[i]. Words must be separated by
// whitespace only. end is the index after the last word.
func span(toks []token, i, n int) (words []string, end int, ok bool) {
	j := i
	for len(words) < n {
		if j >= len(toks) {
			return nil, 0, false
		}
		tok := toks[j]
		if tok.word {
			words = append(words, tok.text)
		} else if strings.TrimSpace(tok.text) != "" {
			return nil, 0, false
		}
		j++
	}
	return words, j, true
}

func normalize(phrase string) string {
	var words []string
	for _, tok := range tokenize(phrase) {
		if tok.word {
			words = append(words, tok.text)
		}
	}
	return strings.Join(words, " ")
}

// matchCase carries the casing of the matched source words onto target:
// all upper stays all upper, a leading capital stays a leading capital.
func matchCase(words []string, target string) string {
	src := strings.Join(words, " ")
	if utf8.RuneCountInString(src) > 1 && strings.ToUpper(src) == src && strings.ToLower(src) != src {
		return strings.ToUpper(target)
	}
	first, _ := utf8.DecodeRuneInString(src)
	if !unicode.IsUpper(first) {
		return target
	}
	r, size := utf8.DecodeRuneInString(target)
	if r == utf8.RuneError {
		return target
	}
	return string(unicode.ToUpper(r)) + target[size:]
}
