package analyzers

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/webspoilt/code-janitor/internal/source"
	"github.com/webspoilt/code-janitor/internal/types"
)

// ComplexityAnalyzer computes McCabe cyclomatic complexity per function.
// Functions above the threshold are warnings; above twice the threshold
// they are critical.
type ComplexityAnalyzer struct{}

func (a *ComplexityAnalyzer) Name() string { return "complexity" }

func (a *ComplexityAnalyzer) Categories() []types.Category {
	return []types.Category{types.CategoryComplexity}
}

func (a *ComplexityAnalyzer) Analyze(ctx context.Context, in *Input) ([]types.Issue, error) {
	limit := in.Thresholds.MaxComplexity
	if limit <= 0 {
		return nil, nil
	}

	var issues []types.Issue
	for _, fn := range in.Tree.Functions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cc := CyclomaticComplexity(in.Tree, fn.Node)
		if cc <= limit {
			continue
		}
		sev := types.SeverityWarning
		if cc > 2*limit {
			sev = types.SeverityCritical
		}
		issue := newIssue(in, fn.Node, types.CategoryComplexity, sev, a.Name(),
			fmt.Sprintf("function '%s' has cyclomatic complexity %d (max %d)", fn.Name, cc, limit))
		issues = append(issues, issue.WithRule("cyclomatic-complexity").WithSymbol(fn.Name).WithMetric(float64(cc)))
	}
	return issues, nil
}

// CyclomaticComplexity returns 1 + the number of decision points inside fn,
// excluding nested function definitions.
func CyclomaticComplexity(t *source.Tree, fn *sitter.Node) int {
	g := t.Grammar
	cc := 1
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			typ := child.Type()
			if g.Functions[typ] {
				continue
			}
			if g.Branches[typ] {
				cc++
			}
			if g.BoolOps[typ] && isLogicalOperator(child) {
				cc++
			}
			visit(child)
		}
	}
	visit(fn)
	return cc
}

func isLogicalOperator(n *sitter.Node) bool {
	if n.Type() == "boolean_operator" {
		return true
	}
	op := n.ChildByFieldName("operator")
	if op == nil {
		return false
	}
	switch op.Type() {
	case "&&", "||", "??":
		return true
	}
	return false
}
