package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/seantiz/polyglot/internal/config"
	"github.com/seantiz/polyglot/internal/engine/glossary"
)

var (
	flagFrom string // value of --from flag
	flagTo   string // value of --to flag
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "manage the phrase table of the glossary engine",
}

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source> <target>",
	Short: "add or replace one phrase",
	Args:  cobra.ExactArgs(2),
	RunE:  doGlossaryAdd,
}

var glossaryImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "import phrases from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  doGlossaryImport,
}

func init() {
	for _, c := range []*cobra.Command{glossaryAddCmd, glossaryImportCmd} {
		c.Flags().StringVar(&flagFrom, "from", "", "source language in the glossary code set, e.g. en")
		c.Flags().StringVar(&flagTo, "to", "", "target language in the glossary code set, e.g. fr")
	}
	_ = glossaryAddCmd.MarkFlagRequired("from")
	_ = glossaryAddCmd.MarkFlagRequired("to")

	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryImportCmd)
}

// glossaryFile is the import format. Language flags override the file.
//
//	from: en
//	to: fr
//	phrases:
//	  good morning: bonjour
type glossaryFile struct {
	From    string            `yaml:"from"`
	To      string            `yaml:"to"`
	Phrases map[string]string `yaml:"phrases"`
}

func parseGlossaryFile(r io.Reader) (glossaryFile, error) {
	var f glossaryFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return f, fmt.Errorf("parse glossary file: %w", err)
	}
	if flagFrom != "" {
		f.From = flagFrom
	}
	if flagTo != "" {
		f.To = flagTo
	}
	if f.From == "" || f.To == "" {
		return f, fmt.Errorf("glossary file: source and target languages are required")
	}
	return f, nil
}

func openGlossary() (*glossary.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ModelPath, 0o755); err != nil {
		return nil, fmt.Errorf("create model storage path: %w", err)
	}
	return glossary.Open(filepath.Join(cfg.ModelPath, glossary.DatabaseFile))
}

func doGlossaryAdd(cmd *cobra.Command, args []string) error {
	st, err := openGlossary()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Add(cmd.Context(), flagFrom, flagTo, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %q = %q\n", flagFrom, flagTo, args[0], args[1])
	return nil
}

func doGlossaryImport(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open glossary file: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()

	f, err := parseGlossaryFile(in)
	if err != nil {
		return err
	}

	st, err := openGlossary()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := importPhrases(cmd.Context(), st, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: imported %d phrases\n", f.From, f.To, n)
	return nil
}

func importPhrases(ctx context.Context, st *glossary.Store, f glossaryFile) (int, error) {
	sources := make([]string, 0, len(f.Phrases))
	for s := range f.Phrases {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	for i, s := range sources {
		if err := st.Add(ctx, f.From, f.To, s, f.Phrases[s]); err != nil {
			return i, fmt.Errorf("phrase %q: %w", s, err)
		}
	}
	return len(sources), nil
}
