package ledger

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// LegacyExpr is LegacyClassifier written as an ExprClassifier expression.
const LegacyExpr = `invoiceRef == "" || origin == "IMPORT" || origin == "LOCAL_PURCHASE"`

// ExprClassifier classifies events with a CEL expression that evaluates to true
// for inbound events. The expression sees two string variables:
// origin (IMPORT, LOCAL_PURCHASE or DISPATCH) and invoiceRef ("" when absent).
//
// Example: `origin != "DISPATCH"`.
type ExprClassifier struct {
	expr     string
	program  cel.Program
	fallback Classifier
}

// NewExprClassifier compiles expr and checks that it yields a bool for every
// origin, with and without an invoice reference. An expression that fails at
// evaluation time later falls back to LegacyClassifier for that event.
func NewExprClassifier(expr string) (*ExprClassifier, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("classifier expression is empty")
	}

	env, err := cel.NewEnv(
		cel.Variable("origin", cel.StringType),
		cel.Variable("invoiceRef", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile classifier expression: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("classifier expression must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build classifier program: %w", err)
	}

	c := &ExprClassifier{expr: expr, program: prg, fallback: LegacyClassifier}

	for _, origin := range Origins {
		for _, ref := range []string{"", "INV-1"} {
			if _, err := c.eval(MovementEvent{Origin: origin, InvoiceRef: ref}); err != nil {
				return nil, fmt.Errorf("evaluate classifier expression for %s ref=%q: %w", origin, ref, err)
			}
		}
	}

	return c, nil
}

// Expr returns the source expression.
func (c *ExprClassifier) Expr() string { return c.expr }

// Classify implements Classifier.
func (c *ExprClassifier) Classify(e MovementEvent) Direction {
	in, err := c.eval(e)
	if err != nil {
		return c.fallback.Classify(e)
	}
	if in {
		return DirectionIn
	}
	return DirectionOut
}

func (c *ExprClassifier) eval(e MovementEvent) (bool, error) {
	out, _, err := c.program.Eval(map[string]any{
		"origin":     string(e.Origin),
		"invoiceRef": NormalizeInvoiceRef(e.InvoiceRef),
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression produced %T", out.Value())
	}
	return b, nil
}

// NewClassifier returns LegacyClassifier for an empty expression and an
// ExprClassifier otherwise.
func NewClassifier(expr string) (Classifier, error) {
	if strings.TrimSpace(expr) == "" {
		return LegacyClassifier, nil
	}
	return NewExprClassifier(expr)
}
