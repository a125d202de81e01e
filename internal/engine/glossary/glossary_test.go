package glossary

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/seantiz/polyglot/internal/engine"
	"github.com/seantiz/polyglot/internal/worker"
)

func testTable() *Table {
	tbl := NewTable()
	tbl.Add("en", "fr", "good", "bon")
	tbl.Add("en", "fr", "good morning", "bonjour")
	tbl.Add("en", "fr", "morning", "matin")
	tbl.Add("en", "fr", "world", "monde")
	tbl.Add("en", "fr", "the", "le")
	tbl.Add("en", "fr", "New York", "New York")
	return tbl
}

func TestTranslate(t *testing.T) {
	defaults := Options{MaxPhraseWords: 4, Unknown: UnknownKeep}

	tests := []struct {
		name string
		text string
		opts Options
		want string
	}{
		{"single word", "world", defaults, "monde"},
		{"longest phrase wins", "good morning", defaults, "bonjour"},
		{"phrase limit", "good morning", Options{MaxPhraseWords: 1, Unknown: UnknownKeep}, "bon matin"},
		{"punctuation preserved", "good morning, world!", defaults, "bonjour, monde!"},
		{"punctuation breaks phrase", "good, morning", defaults, "bon, matin"},
		{"extra spacing inside phrase", "good   morning", defaults, "bonjour"},
		{"leading capital", "Good morning", defaults, "Bonjour"},
		{"all caps", "GOOD MORNING", defaults, "BONJOUR"},
		{"unknown kept", "hello world", defaults, "hello monde"},
		{"unknown marked", "hello world", Options{MaxPhraseWords: 4, Unknown: UnknownMark}, "[hello] monde"},
		{"case sensitive miss", "Good", Options{CaseSensitive: true, MaxPhraseWords: 4, Unknown: UnknownKeep}, "Good"},
		{"case sensitive hit", "New York", Options{CaseSensitive: true, MaxPhraseWords: 4, Unknown: UnknownKeep}, "New York"},
		{"empty text", "", defaults, ""},
	}

	tbl := testTable()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tbl.Translate(tt.text, "en", "fr", tt.opts)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateNoEntries(t *testing.T) {
	_, err := testTable().Translate("good", "en", "de", Options{})
	require.ErrorIs(t, err, ErrNoEntries)
	require.ErrorContains(t, err, "en -> de")
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(nil)
	require.NoError(t, err)
	require.Equal(t, Options{MaxPhraseWords: 4, Unknown: UnknownKeep}, opts)

	opts, err = ParseOptions(map[string]any{
		"case_sensitive":   true,
		"max_phrase_words": int8(2),
		"unknown":          "mark",
	})
	require.NoError(t, err)
	require.Equal(t, Options{CaseSensitive: true, MaxPhraseWords: 2, Unknown: UnknownMark}, opts)

	for _, params := range []map[string]any{
		{"case_sensitive": "yes"},
		{"max_phrase_words": 0},
		{"max_phrase_words": 1.5},
		{"unknown": "drop"},
	} {
		_, err := ParseOptions(params)
		require.ErrorIs(t, err, engine.ErrInvalidParameter, "params %v", params)
	}
}

func TestStoreAddLoad(t *testing.T) {
	ctx := context.Background()
	st, err := Open(filepath.Join(t.TempDir(), DatabaseFile))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Add(ctx, "en", "fr", "  good   morning ", "bonjour"))
	require.NoError(t, st.Add(ctx, "en", "fr", "cat", "chatte"))
	require.NoError(t, st.Add(ctx, "en", "fr", "cat", "chat"))
	require.NoError(t, st.Add(ctx, "en", "de", "cat", "Katze"))

	err = st.Add(ctx, "en", "fr", " ... ", "x")
	require.True(t, errors.Is(err, ErrEmptyPhrase))
	require.ErrorIs(t, st.Add(ctx, "en", "fr", "dog", "  "), ErrEmptyPhrase)

	tbl, err := st.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len("en", "fr"))
	require.Equal(t, 1, tbl.Len("en", "de"))

	got, err := tbl.Translate("good morning cat", "en", "fr", Options{})
	require.NoError(t, err)
	require.Equal(t, "bonjour chat", got)
}

func TestEngineInitializeCreatesStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models", "glossary")

	tbl, err := Engine{}.Initialize(worker.Config{StoragePath: dir})
	require.NoError(t, err)
	require.Zero(t, tbl.Len("en", "fr"))
	require.FileExists(t, filepath.Join(dir, DatabaseFile))
}

func TestEngineHandle(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, DatabaseFile))
	require.NoError(t, err)
	require.NoError(t, st.Add(context.Background(), "en", "fr", "world", "monde"))
	require.NoError(t, st.Close())

	cfg := worker.Config{StoragePath: dir, Model: Model}
	tbl, err := Engine{}.Initialize(cfg)
	require.NoError(t, err)

	raw, err := msgpack.Marshal(engine.TranslateArgs{
		Text:   "hello world",
		Source: "en",
		Target: "fr",
		Params: map[string]any{"unknown": "mark"},
	})
	require.NoError(t, err)

	out, err := Engine{}.Handle(t.Context(), worker.Command{Name: engine.CommandTranslate, Args: raw}, tbl, cfg)
	require.NoError(t, err)
	require.Equal(t, "[hello] monde", out)

	_, err = Engine{}.Handle(t.Context(), worker.Command{Name: "detect"}, tbl, cfg)
	require.ErrorIs(t, err, engine.ErrUnknownCommand)
}

func TestEntry(t *testing.T) {
	e := Entry()
	require.Equal(t, Model, e.Name)
	require.Equal(t, "iso639", e.CodeSet)
	require.NotNil(t, e.Host)
}
