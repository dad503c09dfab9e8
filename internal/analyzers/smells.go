package analyzers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// SmellAnalyzer detects structural smells on the syntax tree: deep nesting,
// long functions, unreachable statements and unused imports.
type SmellAnalyzer struct{}

func (a *SmellAnalyzer) Name() string { return "smells" }

func (a *SmellAnalyzer) Categories() []types.Category {
	return []types.Category{types.CategoryNesting, types.CategoryLength, types.CategoryDeadCode}
}

func (a *SmellAnalyzer) Analyze(ctx context.Context, in *Input) ([]types.Issue, error) {
	var issues []types.Issue

	for _, fn := range in.Tree.Functions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		issues = append(issues, a.checkNesting(in, fn)...)
		issues = append(issues, a.checkLength(in, fn)...)
	}

	issues = append(issues, a.unreachable(in)...)

	switch in.Unit.Language {
	case source.LanguagePython:
		// Package __init__ files import names to re-export them.
		if filepath.Base(in.Unit.Path) != "__init__.py" {
			issues = append(issues, a.unusedImports(in, pythonImportBindings(in.Tree))...)
		}
	case source.LanguageJavaScript:
		issues = append(issues, a.unusedImports(in, jsImportBindings(in.Tree))...)
	}
	return issues, nil
}

func (a *SmellAnalyzer) checkNesting(in *Input, fn source.Function) []types.Issue {
	limit := in.Thresholds.MaxNesting
	if limit <= 0 {
		return nil
	}
	depth := NestingDepth(in.Tree.Grammar, fn.Node)
	if depth <= limit {
		return nil
	}
	issue := newIssue(in, fn.Node, types.CategoryNesting, types.SeverityWarning, a.Name(),
		fmt.Sprintf("function '%s' nests %d levels deep (max %d)", fn.Name, depth, limit))
	return []types.Issue{issue.WithRule("deep-nesting").WithSymbol(fn.Name).WithMetric(float64(depth))}
}

func (a *SmellAnalyzer) checkLength(in *Input, fn source.Function) []types.Issue {
	limit := in.Thresholds.MaxFunctionLines
	if limit <= 0 {
		return nil
	}
	length := fn.EndLine - fn.StartLine + 1
	if length <= limit {
		return nil
	}
	issue := newIssue(in, fn.Node, types.CategoryLength, types.SeverityWarning, a.Name(),
		fmt.Sprintf("function '%s' is %d lines long (max %d)", fn.Name, length, limit))
	return []types.Issue{issue.WithRule("long-function").WithSymbol(fn.Name).WithMetric(float64(length))}
}

// NestingDepth returns the deepest nesting of control-flow statements inside
// fn, not counting nested function definitions (they are measured on their
// own). An "else if" continues its parent's level.
func NestingDepth(g *source.Grammar, fn *sitter.Node) int {
	maxDepth := 0
	var visit func(n *sitter.Node, depth int)
	visit = func(n *sitter.Node, depth int) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if g.Functions[child.Type()] {
				continue
			}
			d := depth
			if g.Nesting[child.Type()] && !isElseIf(child) {
				d++
				if d > maxDepth {
					maxDepth = d
				}
			}
			visit(child, d)
		}
	}
	visit(fn, 0)
	return maxDepth
}

// isElseIf reports whether an if statement is the else branch of another
func isElseIf(n *sitter.Node) bool {
	if n.Type() != "if_statement" {
		return false
	}
	parent := n.Parent()
	if parent == nil {
		return false
	}
	if parent.Type() == "if_statement" {
		return true
	}
	if parent.Type() == "else_clause" {
		if gp := parent.Parent(); gp != nil && gp.Type() == "if_statement" {
			return true
		}
	}
	return false
}

// unreachable flags the first statement following a return/raise/break/
// continue/throw in the same block.
func (a *SmellAnalyzer) unreachable(in *Input) []types.Issue {
	g := in.Tree.Grammar
	var issues []types.Issue
	in.Tree.Walk(func(n *sitter.Node) bool {
		if !g.Blocks[n.Type()] {
			return true
		}
		var terminator string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			stmt := n.NamedChild(i)
			if stmt.Type() == g.Comment {
				continue
			}
			if terminator != "" {
				kind := strings.TrimSuffix(terminator, "_statement")
				issue := newIssue(in, stmt, types.CategoryDeadCode, types.SeverityWarning, a.Name(),
					fmt.Sprintf("unreachable code after %s", kind))
				if fn := in.Tree.EnclosingFunction(stmt); fn != "" {
					issue = issue.WithSymbol(fn)
				}
				issues = append(issues, issue.WithRule("unreachable-code"))
				break
			}
			if g.Terminators[stmt.Type()] {
				terminator = stmt.Type()
			}
		}
		return true
	})
	return issues
}

// importBinding is a name introduced by an import statement
type importBinding struct {
	name string
	node *sitter.Node // the import statement
}

func (a *SmellAnalyzer) unusedImports(in *Input, bindings []importBinding) []types.Issue {
	if len(bindings) == 0 {
		return nil
	}
	g := in.Tree.Grammar
	used := make(map[string]int)
	in.Tree.Walk(func(n *sitter.Node) bool {
		if g.Imports[n.Type()] {
			return false
		}
		switch n.Type() {
		case "identifier", "shorthand_property_identifier", "type_identifier":
			used[in.Tree.Text(n)]++
		case "string":
			// __all__ = ["name"] re-exports count as a use.
			text := strings.Trim(in.Tree.Text(n), `"'`)
			used[text]++
		}
		return true
	})

	var issues []types.Issue
	for _, b := range bindings {
		if used[b.name] > 0 {
			continue
		}
		issue := newIssue(in, b.node, types.CategoryDeadCode, types.SeverityInfo, a.Name(),
			fmt.Sprintf("'%s' imported but unused", b.name))
		issues = append(issues, issue.WithRule("unused-import").WithSymbol(b.name))
	}
	return issues
}

func pythonImportBindings(t *source.Tree) []importBinding {
	var out []importBinding
	root := t.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		switch stmt.Type() {
		case "import_statement":
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				if name := pythonBoundName(t, stmt.NamedChild(j), true); name != "" {
					out = append(out, importBinding{name: name, node: stmt})
				}
			}
		case "import_from_statement":
			module := stmt.ChildByFieldName("module_name")
			if module != nil && t.Text(module) == "__future__" {
				continue
			}
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				child := stmt.NamedChild(j)
				if module != nil && child.StartByte() == module.StartByte() {
					continue
				}
				if child.Type() == "wildcard_import" {
					break
				}
				if name := pythonBoundName(t, child, false); name != "" {
					out = append(out, importBinding{name: name, node: stmt})
				}
			}
		}
	}
	return out
}

// pythonBoundName returns the name an import clause binds. "import a.b"
// binds "a"; "from m import a" binds "a"; aliases bind the alias.
func pythonBoundName(t *source.Tree, n *sitter.Node, plainImport bool) string {
	switch n.Type() {
	case "aliased_import":
		return t.Text(n.ChildByFieldName("alias"))
	case "dotted_name":
		text := t.Text(n)
		if plainImport {
			if idx := strings.IndexByte(text, '.'); idx >= 0 {
				return text[:idx]
			}
		}
		return text
	}
	return ""
}

func jsImportBindings(t *source.Tree) []importBinding {
	var out []importBinding
	root := t.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "import_statement" {
			continue
		}
		var collect func(n *sitter.Node)
		collect = func(n *sitter.Node) {
			switch n.Type() {
			case "import_specifier":
				name := n.ChildByFieldName("alias")
				if name == nil {
					name = n.ChildByFieldName("name")
				}
				if name != nil {
					out = append(out, importBinding{name: t.Text(name), node: stmt})
				}
				return
			case "identifier":
				out = append(out, importBinding{name: t.Text(n), node: stmt})
				return
			case "string":
				return
			}
			for j := 0; j < int(n.NamedChildCount()); j++ {
				collect(n.NamedChild(j))
			}
		}
		collect(stmt)
	}
	return out
}
