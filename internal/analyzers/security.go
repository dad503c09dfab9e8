package analyzers

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// CallRule flags calls to a dangerous function. Names match the full
// callee text ("eval", "os.system"); Suffixes match method calls on any
// receiver (".execute"). When Args is set the rule only fires if it
// returns true for the call's argument list.
type CallRule struct {
	ID       string
	Severity types.Severity
	Message  string
	Names    []string
	Suffixes []string
	Args     func(t *source.Tree, call, args *sitter.Node) bool
}

func (r *CallRule) matches(callee string) bool {
	for _, name := range r.Names {
		if callee == name {
			return true
		}
	}
	for _, suffix := range r.Suffixes {
		if strings.HasSuffix(callee, suffix) {
			return true
		}
	}
	return false
}

// ImportRule flags importing a module
type ImportRule struct {
	ID       string
	Severity types.Severity
	Message  string
	Modules  []string
}

// SecurityAnalyzer scans the syntax tree for dangerous calls and imports,
// and the raw text for hardcoded secrets. Matching on the tree keeps
// mentions inside comments and strings from being reported.
type SecurityAnalyzer struct {
	calls   map[source.Language][]CallRule
	imports map[source.Language][]ImportRule
	secrets []SecretPattern
}

// NewSecurityAnalyzer creates a security analyzer with the built-in rules
func NewSecurityAnalyzer() *SecurityAnalyzer {
	return &SecurityAnalyzer{
		calls: map[source.Language][]CallRule{
			source.LanguagePython:     PythonCallRules(),
			source.LanguageGo:         GoCallRules(),
			source.LanguageJavaScript: JavaScriptCallRules(),
		},
		imports: map[source.Language][]ImportRule{
			source.LanguagePython: {
				{ID: "pickle-import", Severity: types.SeverityWarning, Message: "pickle module can execute arbitrary code during deserialization", Modules: []string{"pickle", "cPickle", "dill"}},
			},
			source.LanguageGo: {
				{ID: "unsafe-import", Severity: types.SeverityWarning, Message: "package unsafe bypasses Go's memory safety", Modules: []string{"unsafe"}},
			},
		},
		secrets: DefaultSecretPatterns(),
	}
}

func (a *SecurityAnalyzer) Name() string { return "security" }

func (a *SecurityAnalyzer) Categories() []types.Category {
	return []types.Category{types.CategorySecurity}
}

func (a *SecurityAnalyzer) Analyze(ctx context.Context, in *Input) ([]types.Issue, error) {
	lang := in.Unit.Language
	callRules := a.calls[lang]
	importRules := a.imports[lang]
	g := in.Tree.Grammar

	var issues []types.Issue
	in.Tree.Walk(func(n *sitter.Node) bool {
		typ := n.Type()
		switch {
		case g.Calls[typ]:
			issues = append(issues, a.checkCall(in, n, callRules)...)
		case g.Imports[typ]:
			issues = append(issues, a.checkImport(in, n, importRules)...)
		}
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issues = append(issues, ScanSecrets(in, a.secrets, a.Name())...)
	return issues, nil
}

func (a *SecurityAnalyzer) checkCall(in *Input, call *sitter.Node, rules []CallRule) []types.Issue {
	callee := calleeName(in.Tree, call)
	if callee == "" {
		return nil
	}
	args := call.ChildByFieldName("arguments")

	var issues []types.Issue
	for i := range rules {
		rule := &rules[i]
		if !rule.matches(callee) {
			continue
		}
		if rule.Args != nil && (args == nil || !rule.Args(in.Tree, call, args)) {
			continue
		}
		issue := newIssue(in, call, types.CategorySecurity, rule.Severity, a.Name(), rule.Message).WithRule(rule.ID)
		if fn := in.Tree.EnclosingFunction(call); fn != "" {
			issue = issue.WithSymbol(fn)
		}
		issues = append(issues, issue)
	}
	return issues
}

func (a *SecurityAnalyzer) checkImport(in *Input, stmt *sitter.Node, rules []ImportRule) []types.Issue {
	if len(rules) == 0 {
		return nil
	}
	modules := importedModules(in.Tree, stmt)

	var issues []types.Issue
	for _, rule := range rules {
		for _, want := range rule.Modules {
			if modules[want] {
				issue := newIssue(in, stmt, types.CategorySecurity, rule.Severity, a.Name(), rule.Message).WithRule(rule.ID)
				issues = append(issues, issue)
				break
			}
		}
	}
	return issues
}

// importedModules returns the top-level module names an import statement
// refers to.
func importedModules(t *source.Tree, stmt *sitter.Node) map[string]bool {
	out := make(map[string]bool)
	switch stmt.Type() {
	case "import_spec": // Go
		path := strings.Trim(t.Text(stmt.ChildByFieldName("path")), "\"`")
		out[path] = true
	case "import_from_statement":
		if module := stmt.ChildByFieldName("module_name"); module != nil {
			out[firstSegment(t.Text(module))] = true
		}
	case "import_statement":
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			child := stmt.NamedChild(i)
			switch child.Type() {
			case "dotted_name":
				out[firstSegment(t.Text(child))] = true
			case "aliased_import":
				out[firstSegment(t.Text(child.ChildByFieldName("name")))] = true
			case "string": // JS: import x from "mod"
				out[strings.Trim(t.Text(child), "\"'`")] = true
			}
		}
		if src := stmt.ChildByFieldName("source"); src != nil {
			out[strings.Trim(t.Text(src), "\"'`")] = true
		}
	}
	return out
}

func firstSegment(dotted string) string {
	if idx := strings.IndexByte(dotted, '.'); idx >= 0 {
		return dotted[:idx]
	}
	return dotted
}

var whitespace = regexp.MustCompile(`\s+`)

// calleeName returns the called expression as text ("eval", "os.system",
// "cursor.execute"), or "" for computed callees.
func calleeName(t *source.Tree, call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		fn = call.ChildByFieldName("constructor") // JS new_expression
	}
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier", "attribute", "selector_expression", "member_expression":
		return whitespace.ReplaceAllString(t.Text(fn), "")
	}
	return ""
}

// firstArg returns the first named argument node, skipping keyword
// arguments.
func firstArg(args *sitter.Node) *sitter.Node {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "keyword_argument" || arg.Type() == "comment" {
			continue
		}
		return arg
	}
	return nil
}

// PythonCallRules returns the built-in Python call rules
func PythonCallRules() []CallRule {
	return []CallRule{
		{ID: "eval-call", Severity: types.SeverityCritical, Message: "dangerous use of eval() allows arbitrary code execution", Names: []string{"eval"}},
		{ID: "exec-call", Severity: types.SeverityCritical, Message: "dangerous use of exec() allows arbitrary code execution", Names: []string{"exec"}},
		{ID: "dynamic-import", Severity: types.SeverityWarning, Message: "__import__() loads modules chosen at runtime", Names: []string{"__import__"}},
		{ID: "os-system", Severity: types.SeverityWarning, Message: "os.system() runs a shell command; use subprocess with an argument list", Names: []string{"os.system", "os.popen"}},
		{ID: "subprocess-shell", Severity: types.SeverityWarning, Message: "subprocess call with shell=True is vulnerable to shell injection",
			Names: []string{"subprocess.call", "subprocess.run", "subprocess.Popen", "subprocess.check_call", "subprocess.check_output"},
			Args:  pythonShellTrue},
		{ID: "pickle-load", Severity: types.SeverityWarning, Message: "unpickling untrusted data can execute arbitrary code", Names: []string{"pickle.load", "pickle.loads"}},
		{ID: "sql-injection", Severity: types.SeverityCritical, Message: "potential SQL injection: query built from dynamic strings, use parameterized queries",
			Suffixes: []string{".execute", ".executemany"},
			Args:     pythonDynamicSQL},
	}
}

// GoCallRules returns the built-in Go call rules
func GoCallRules() []CallRule {
	return []CallRule{
		{ID: "sql-injection", Severity: types.SeverityCritical, Message: "potential SQL injection: query built with fmt.Sprintf or concatenation, use placeholders",
			Suffixes: []string{".Query", ".QueryRow", ".Exec", ".QueryContext", ".QueryRowContext", ".ExecContext"},
			Args:     goDynamicSQL},
		{ID: "shell-exec", Severity: types.SeverityWarning, Message: "command executed through a shell is vulnerable to injection",
			Names: []string{"exec.Command", "exec.CommandContext"},
			Args:  goShellExec},
	}
}

// JavaScriptCallRules returns the built-in JavaScript call rules
func JavaScriptCallRules() []CallRule {
	return []CallRule{
		{ID: "eval-call", Severity: types.SeverityCritical, Message: "dangerous use of eval() allows arbitrary code execution", Names: []string{"eval", "window.eval"}},
		{ID: "function-constructor", Severity: types.SeverityCritical, Message: "new Function() compiles code from strings", Names: []string{"Function"}},
		{ID: "sql-injection", Severity: types.SeverityCritical, Message: "potential SQL injection: query built from dynamic strings, use placeholders",
			Suffixes: []string{".query", ".execute", ".raw"},
			Args:     jsDynamicSQL},
		{ID: "child-process-exec", Severity: types.SeverityWarning, Message: "child_process.exec runs a shell command; prefer execFile with arguments",
			Names: []string{"child_process.exec", "child_process.execSync", "cp.exec", "cp.execSync"}},
	}
}

func pythonShellTrue(t *source.Tree, _ *sitter.Node, args *sitter.Node) bool {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() != "keyword_argument" {
			continue
		}
		if t.Text(arg.ChildByFieldName("name")) == "shell" && t.Text(arg.ChildByFieldName("value")) == "True" {
			return true
		}
	}
	return false
}

// pythonDynamicSQL reports whether the first argument is a string built at
// runtime: % formatting, concatenation, f-strings, .format(), or a local
// variable assigned from one of those in the same function.
func pythonDynamicSQL(t *source.Tree, call, args *sitter.Node) bool {
	arg := firstArg(args)
	if arg == nil {
		return false
	}
	if pythonIsDynamicString(t, arg) {
		return true
	}
	if arg.Type() == "identifier" {
		return assignedDynamic(t, call, t.Text(arg), pythonIsDynamicString)
	}
	return false
}

func pythonIsDynamicString(t *source.Tree, n *sitter.Node) bool {
	switch n.Type() {
	case "binary_operator":
		op := n.ChildByFieldName("operator")
		return op != nil && (op.Type() == "%" || op.Type() == "+")
	case "string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "interpolation" {
				return true
			}
		}
	case "call":
		fn := n.ChildByFieldName("function")
		return fn != nil && fn.Type() == "attribute" && t.Text(fn.ChildByFieldName("attribute")) == "format"
	case "parenthesized_expression":
		if inner := n.NamedChild(0); inner != nil {
			return pythonIsDynamicString(t, inner)
		}
	}
	return false
}

func goDynamicSQL(t *source.Tree, call, args *sitter.Node) bool {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if goIsDynamicString(t, arg) {
			return true
		}
		if arg.Type() == "identifier" && assignedDynamic(t, call, t.Text(arg), goIsDynamicString) {
			return true
		}
	}
	return false
}

func goIsDynamicString(t *source.Tree, n *sitter.Node) bool {
	switch n.Type() {
	case "call_expression":
		return calleeName(t, n) == "fmt.Sprintf"
	case "binary_expression":
		op := n.ChildByFieldName("operator")
		if op == nil || op.Type() != "+" {
			return false
		}
		// Concatenating two literals is still a constant.
		return !(isStringLiteral(n.ChildByFieldName("left")) && isStringLiteral(n.ChildByFieldName("right")))
	}
	return false
}

func isStringLiteral(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "interpreted_string_literal", "raw_string_literal", "string":
		return true
	}
	return false
}

func goShellExec(t *source.Tree, _ *sitter.Node, args *sitter.Node) bool {
	var sawShell bool
	for i := 0; i < int(args.NamedChildCount()); i++ {
		text := strings.Trim(t.Text(args.NamedChild(i)), "\"`")
		switch text {
		case "sh", "bash", "/bin/sh", "/bin/bash", "zsh":
			sawShell = true
		case "-c":
			if sawShell {
				return true
			}
		}
	}
	return false
}

func jsDynamicSQL(t *source.Tree, call, args *sitter.Node) bool {
	arg := firstArg(args)
	if arg == nil {
		return false
	}
	if jsIsDynamicString(t, arg) {
		return true
	}
	if arg.Type() == "identifier" {
		return assignedDynamic(t, call, t.Text(arg), jsIsDynamicString)
	}
	return false
}

func jsIsDynamicString(_ *source.Tree, n *sitter.Node) bool {
	switch n.Type() {
	case "template_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "template_substitution" {
				return true
			}
		}
	case "binary_expression":
		op := n.ChildByFieldName("operator")
		return op != nil && op.Type() == "+"
	}
	return false
}

// assignedDynamic looks for an assignment of name to a dynamic string in
// the function enclosing call (or the whole unit at top level).
func assignedDynamic(t *source.Tree, call *sitter.Node, name string, dynamic func(*source.Tree, *sitter.Node) bool) bool {
	scope := call.Parent()
	for scope != nil && !t.Grammar.Functions[scope.Type()] {
		scope = scope.Parent()
	}
	if scope == nil {
		scope = t.Root()
	}

	found := false
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if found {
			return
		}
		var left, right *sitter.Node
		switch n.Type() {
		case "assignment", "assignment_expression": // Python, JS
			left, right = n.ChildByFieldName("left"), n.ChildByFieldName("right")
		case "variable_declarator": // JS
			left, right = n.ChildByFieldName("name"), n.ChildByFieldName("value")
		case "short_var_declaration", "assignment_statement": // Go
			left, right = n.ChildByFieldName("left"), n.ChildByFieldName("right")
			if right != nil && right.Type() == "expression_list" && right.NamedChildCount() > 0 {
				right = right.NamedChild(0)
			}
		}
		if left != nil && right != nil && strings.TrimSpace(t.Text(left)) == name && dynamic(t, right) {
			found = true
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(scope)
	return found
}
