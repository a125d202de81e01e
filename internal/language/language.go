// Package language validates public language codes and maps them to the codes
// each engine understands.
package language

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed mappings/*.yaml
var mappingFiles embed.FS

var codePattern = regexp.MustCompile(`^[a-z]{2}_[A-Z]{2}$`)

var (
	// ErrInvalidLanguageFormat is returned for codes not shaped like xx_XX.
	ErrInvalidLanguageFormat = errors.New("invalid language format, expected xx_XX")

	// ErrUnknownCodeSet is returned when no mapping file exists for a code set.
	ErrUnknownCodeSet = errors.New("error loading language mappings for code set")

	// ErrLanguageNotFound is returned when a code set has no entry for a code.
	ErrLanguageNotFound = errors.New("language not found")
)

// ValidateCode checks that code has the xx_XX shape.
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return ErrInvalidLanguageFormat
	}
	return nil
}

// Mapper holds the parsed code sets. The zero value is not usable; use
// NewMapper or Default.
type Mapper struct {
	sets map[string]map[string]string
}

var (
	defaultOnce   sync.Once
	defaultMapper *Mapper
	defaultErr    error
)

// Default returns the mapper over the embedded code sets, parsed once.
func Default() (*Mapper, error) {
	defaultOnce.Do(func() {
		defaultMapper, defaultErr = loadEmbedded()
	})
	return defaultMapper, defaultErr
}

func loadEmbedded() (*Mapper, error) {
	entries, err := mappingFiles.ReadDir("mappings")
	if err != nil {
		return nil, fmt.Errorf("read mappings: %w", err)
	}
	sets := make(map[string][]byte, len(entries))
	for _, e := range entries {
		data, err := mappingFiles.ReadFile(path.Join("mappings", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		sets[strings.TrimSuffix(e.Name(), path.Ext(e.Name()))] = data
	}
	return NewMapper(sets)
}

// NewMapper parses one YAML document per code set. Every key must be a valid
// public code.
func NewMapper(sets map[string][]byte) (*Mapper, error) {
	m := &Mapper{sets: make(map[string]map[string]string, len(sets))}
	for name, data := range sets {
		var table map[string]string
		if err := yaml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse code set %s: %w", name, err)
		}
		for code := range table {
			if err := ValidateCode(code); err != nil {
				return nil, fmt.Errorf("code set %s: %q: %w", name, code, err)
			}
		}
		m.sets[name] = table
	}
	return m, nil
}

// Map returns the engine-specific code for a public code.
func (m *Mapper) Map(code, codeSet string) (string, error) {
	table, ok := m.sets[codeSet]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCodeSet, codeSet)
	}
	v, ok := table[code]
	if !ok {
		return "", fmt.Errorf("%w: language %q not found for code set %q", ErrLanguageNotFound, code, codeSet)
	}
	return v, nil
}

// Languages lists the public codes of a code set in sorted order.
func (m *Mapper) Languages(codeSet string) ([]string, error) {
	table, ok := m.sets[codeSet]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodeSet, codeSet)
	}
	codes := make([]string, 0, len(table))
	for code := range table {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes, nil
}

// CodeSets lists the loaded code set names.
func (m *Mapper) CodeSets() []string {
	names := make([]string, 0, len(m.sets))
	for name := range m.sets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
