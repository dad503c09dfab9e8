package source

import (
	"context"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/webspoilt/code-janitor/internal/types"
)

// maxErrorLines bounds how many syntax error lines are reported for one unit
const maxErrorLines = 20

// Tree is a parsed unit. Trees are read-only after Parse returns and may be
// shared across concurrently running analyzers.
type Tree struct {
	Unit    *Unit
	Grammar *Grammar
	tree    *sitter.Tree
}

// Parse parses the unit. A tree containing ERROR or MISSING nodes yields a
// *types.ParseError listing the affected lines.
func Parse(ctx context.Context, unit *Unit) (*Tree, error) {
	lang := unit.Language.sitterLanguage()
	if lang == nil {
		return nil, fmt.Errorf("no grammar for language %q (%s)", unit.Language, unit.ID)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, unit.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", unit.ID, err)
	}

	root := tree.RootNode()
	if root.HasError() {
		lines := errorLines(root)
		tree.Close()
		return nil, &types.ParseError{Unit: unit.ID, Language: string(unit.Language), Lines: lines}
	}

	return &Tree{Unit: unit, Grammar: unit.Language.Grammar(), tree: tree}, nil
}

// Root returns the root node
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Source returns the parsed bytes
func (t *Tree) Source() []byte {
	return t.Unit.Content
}

// Text returns the source text covered by a node
func (t *Tree) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.Unit.Content)
}

// Close releases the underlying tree-sitter tree
func (t *Tree) Close() {
	if t != nil && t.tree != nil {
		t.tree.Close()
	}
}

// Walk visits every node depth-first. Returning false from fn skips the
// node's children.
func (t *Tree) Walk(fn func(n *sitter.Node) bool) {
	walk(t.Root(), fn)
}

func walk(n *sitter.Node, fn func(n *sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}

// StartLine returns the node's 1-based first line
func StartLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// EndLine returns the node's 1-based last line
func EndLine(n *sitter.Node) int {
	end := n.EndPoint()
	// A node ending at column 0 finishes on the previous line's newline.
	if end.Column == 0 && end.Row > n.StartPoint().Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}

// errorLines collects the distinct lines holding ERROR or MISSING nodes
func errorLines(root *sitter.Node) []int {
	seen := make(map[int]bool)
	walk(root, func(n *sitter.Node) bool {
		if len(seen) >= maxErrorLines {
			return false
		}
		if n.IsError() || n.IsMissing() {
			seen[StartLine(n)] = true
		}
		return n.HasError()
	})
	lines := make([]int, 0, len(seen))
	for l := range seen {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}

// Check reports whether content parses as the unit's language, without
// keeping the tree.
func Check(ctx context.Context, unit *Unit) error {
	tree, err := Parse(ctx, unit)
	if err != nil {
		return err
	}
	tree.Close()
	return nil
}
