package source

import (
	"sort"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

// Function is a function-like definition found in a tree
type Function struct {
	Name      string
	Node      *sitter.Node
	StartLine int
	EndLine   int
}

// Functions returns every function-like definition in source order,
// including nested ones and methods.
func (t *Tree) Functions() []Function {
	var out []Function
	t.Walk(func(n *sitter.Node) bool {
		if t.Grammar.Functions[n.Type()] {
			out = append(out, Function{
				Name:      t.FunctionName(n),
				Node:      n,
				StartLine: StartLine(n),
				EndLine:   EndLine(n),
			})
		}
		return true
	})
	return out
}

// FunctionName names a function node. Anonymous functions bound to a
// variable take the variable's name.
func (t *Tree) FunctionName(n *sitter.Node) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return t.Text(name)
	}
	if parent := n.Parent(); parent != nil {
		switch parent.Type() {
		case "variable_declarator", "pair", "assignment_expression":
			for _, field := range []string{"name", "key", "left"} {
				if name := parent.ChildByFieldName(field); name != nil {
					return t.Text(name)
				}
			}
		}
	}
	return "<anonymous>"
}

// EnclosingFunction returns the name of the innermost function containing n,
// or "" at module level.
func (t *Tree) EnclosingFunction(n *sitter.Node) string {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if t.Grammar.Functions[p.Type()] {
			return t.FunctionName(p)
		}
	}
	return ""
}

// PublicSymbols returns the externally visible top-level names of the unit:
// functions, classes and (for Python) public methods of public classes as
// "Class.method". The result is sorted and deduplicated.
func (t *Tree) PublicSymbols() []string {
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" {
			seen[name] = true
		}
	}

	root := t.Root()
	switch t.Unit.Language {
	case LanguagePython:
		t.pythonSymbols(root, add)
	case LanguageGo:
		t.goSymbols(root, add)
	case LanguageJavaScript:
		t.jsSymbols(root, add)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func pythonPublic(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_")
}

func (t *Tree) pythonSymbols(root *sitter.Node, add func(string)) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		def := root.NamedChild(i)
		if def.Type() == "decorated_definition" {
			def = def.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		name := t.Text(def.ChildByFieldName("name"))
		if !pythonPublic(name) {
			continue
		}
		switch def.Type() {
		case "function_definition":
			add(name)
		case "class_definition":
			add(name)
			body := def.ChildByFieldName("body")
			if body == nil {
				continue
			}
			for j := 0; j < int(body.NamedChildCount()); j++ {
				member := body.NamedChild(j)
				if member.Type() == "decorated_definition" {
					member = member.ChildByFieldName("definition")
				}
				if member == nil || member.Type() != "function_definition" {
					continue
				}
				method := t.Text(member.ChildByFieldName("name"))
				if pythonPublic(method) {
					add(name + "." + method)
				}
			}
		}
	}
}

func goExported(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}

func (t *Tree) goSymbols(root *sitter.Node, add func(string)) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		switch decl.Type() {
		case "function_declaration":
			if name := t.Text(decl.ChildByFieldName("name")); goExported(name) {
				add(name)
			}
		case "method_declaration":
			name := t.Text(decl.ChildByFieldName("name"))
			if !goExported(name) {
				continue
			}
			if recv := t.goReceiverType(decl.ChildByFieldName("receiver")); recv != "" {
				add(recv + "." + name)
			} else {
				add(name)
			}
		case "type_declaration":
			for j := 0; j < int(decl.NamedChildCount()); j++ {
				spec := decl.NamedChild(j)
				if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
					continue
				}
				if name := t.Text(spec.ChildByFieldName("name")); goExported(name) {
					add(name)
				}
			}
		}
	}
}

// goReceiverType extracts "T" from a receiver list like "(s *T)" or "(T[K])"
func (t *Tree) goReceiverType(params *sitter.Node) string {
	if params == nil {
		return ""
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		typ := param.ChildByFieldName("type")
		if typ == nil {
			continue
		}
		text := strings.TrimLeft(t.Text(typ), "*")
		if idx := strings.IndexByte(text, '['); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}
	return ""
}

func (t *Tree) jsSymbols(root *sitter.Node, add func(string)) {
	var declare func(n *sitter.Node, exported bool)
	declare = func(n *sitter.Node, exported bool) {
		switch n.Type() {
		case "function_declaration", "generator_function_declaration", "class_declaration":
			add(t.Text(n.ChildByFieldName("name")))
		case "lexical_declaration", "variable_declaration":
			if !exported {
				return
			}
			for j := 0; j < int(n.NamedChildCount()); j++ {
				d := n.NamedChild(j)
				if d.Type() == "variable_declarator" {
					add(t.Text(d.ChildByFieldName("name")))
				}
			}
		case "export_statement":
			if decl := n.ChildByFieldName("declaration"); decl != nil {
				declare(decl, true)
			}
		}
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		declare(root.NamedChild(i), false)
	}
}

// HasSymbol reports whether name is among the unit's public symbols
func HasSymbol(symbols []string, name string) bool {
	idx := sort.SearchStrings(symbols, name)
	return idx < len(symbols) && symbols[idx] == name
}

// DefinedNames returns every named function, method and class in the unit,
// private ones included. Methods are listed both bare and as "Owner.name",
// and every public symbol is included, so the result is a superset of
// PublicSymbols. Sorted and deduplicated.
func (t *Tree) DefinedNames() []string {
	seen := make(map[string]bool)
	for _, name := range t.PublicSymbols() {
		seen[name] = true
	}

	t.Walk(func(n *sitter.Node) bool {
		switch {
		case t.Grammar.Functions[n.Type()]:
			name := t.FunctionName(n)
			if name == "" || name == "<anonymous>" {
				return true
			}
			seen[name] = true
			if owner := t.owner(n); owner != "" {
				seen[owner+"."+name] = true
			}
		case t.Grammar.Classes[n.Type()]:
			if name := n.ChildByFieldName("name"); name != nil {
				seen[t.Text(name)] = true
			}
		}
		return true
	})

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// owner names the type a method belongs to, or ""
func (t *Tree) owner(fn *sitter.Node) string {
	if fn.Type() == "method_declaration" {
		return t.goReceiverType(fn.ChildByFieldName("receiver"))
	}
	for p := fn.Parent(); p != nil; p = p.Parent() {
		if t.Grammar.Functions[p.Type()] {
			return ""
		}
		if t.Grammar.Classes[p.Type()] {
			if name := p.ChildByFieldName("name"); name != nil {
				return t.Text(name)
			}
			return ""
		}
	}
	return ""
}
