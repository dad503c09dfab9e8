package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webspoilt/code-janitor/internal/types"
)

func TestDetect(t *testing.T) {
	tests := map[string]Language{
		"app.py":          LanguagePython,
		"pkg/main.go":     LanguageGo,
		"web/index.JS":    LanguageJavaScript,
		"lib/mod.mjs":     LanguageJavaScript,
		"README.md":       LanguageUnknown,
		"Makefile":        LanguageUnknown,
		"stubs/typed.pyi": LanguagePython,
	}
	for path, want := range tests {
		assert.Equal(t, want, Detect(path), path)
	}
	assert.Equal(t, LanguageGo, ParseLanguage("golang"))
	assert.Equal(t, LanguageUnknown, ParseLanguage("cobol"))
}

func TestParseValidPython(t *testing.T) {
	unit := FromBytes("ok.py", LanguagePython, []byte("def add(a, b):\n    return a + b\n"))

	tree, err := Parse(context.Background(), unit)
	require.NoError(t, err)
	defer tree.Close()

	fns := tree.Functions()
	require.Len(t, fns, 1)
	assert.Equal(t, "add", fns[0].Name)
	assert.Equal(t, 1, fns[0].StartLine)
	assert.Equal(t, 2, fns[0].EndLine)
}

func TestParseReportsSyntaxErrors(t *testing.T) {
	unit := FromBytes("bad.py", LanguagePython, []byte("def broken(:\n    return 1\n"))

	_, err := Parse(context.Background(), unit)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrParse)

	var perr *types.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.py", perr.Unit)
	assert.NotEmpty(t, perr.Lines)
}

func TestPublicSymbolsPython(t *testing.T) {
	src := `import os

def public_fn():
    pass

def _private_fn():
    pass

@decorator
def decorated():
    pass

class Service:
    def run(self):
        pass

    def _helper(self):
        pass

class _Hidden:
    def visible(self):
        pass
`
	tree, err := Parse(context.Background(), FromBytes("m.py", LanguagePython, []byte(src)))
	require.NoError(t, err)
	defer tree.Close()

	assert.Equal(t, []string{"Service", "Service.run", "decorated", "public_fn"}, tree.PublicSymbols())
}

func TestPublicSymbolsGo(t *testing.T) {
	src := `package svc

type Server struct{}

type config struct{}

func New() *Server { return &Server{} }

func helper() {}

func (s *Server) Start() error { return nil }

func (s *Server) stop() {}
`
	tree, err := Parse(context.Background(), FromBytes("svc.go", LanguageGo, []byte(src)))
	require.NoError(t, err)
	defer tree.Close()

	assert.Equal(t, []string{"New", "Server", "Server.Start"}, tree.PublicSymbols())
}

func TestPublicSymbolsJavaScript(t *testing.T) {
	src := `function render() {}
const local = () => 1;
export const api = () => 2;
export class Widget {}
`
	tree, err := Parse(context.Background(), FromBytes("w.js", LanguageJavaScript, []byte(src)))
	require.NoError(t, err)
	defer tree.Close()

	symbols := tree.PublicSymbols()
	assert.Equal(t, []string{"Widget", "api", "render"}, symbols)
	assert.True(t, HasSymbol(symbols, "api"))
	assert.False(t, HasSymbol(symbols, "local"))
}

func TestAnonymousFunctionTakesVariableName(t *testing.T) {
	tree, err := Parse(context.Background(), FromBytes("a.js", LanguageJavaScript, []byte("const handler = (req) => { return req; };\n")))
	require.NoError(t, err)
	defer tree.Close()

	fns := tree.Functions()
	require.Len(t, fns, 1)
	assert.Equal(t, "handler", fns[0].Name)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0644))

	unit, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, LanguagePython, unit.Language)
	assert.True(t, filepath.IsAbs(unit.Path))
	assert.Equal(t, HashBytes([]byte("x = 1\n")), unit.Hash())

	_, err = Load(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)
}

func TestDefinedNamesIncludesPrivate(t *testing.T) {
	src := "class Cache:\n    def _evict(self):\n        pass\n\n    def get(self, k):\n        return k\n\n\ndef _helper():\n    pass\n"
	tree, err := Parse(context.Background(), FromBytes("cache.py", LanguageUnknown, []byte(src)))
	require.NoError(t, err)
	defer tree.Close()

	names := tree.DefinedNames()
	for _, want := range []string{"Cache", "Cache._evict", "Cache.get", "_evict", "_helper", "get"} {
		assert.True(t, HasSymbol(names, want), want)
	}
	assert.Equal(t, []string{"Cache", "Cache.get"}, tree.PublicSymbols())
}
