package capability

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/pitabwire/govconsole/internal/console"
	"github.com/pitabwire/govconsole/model"
)

// Rule is a boolean CEL expression over the requester. The expression sees
// four variables:
//
//	subject_id    string
//	tenant_id     string
//	roles         list(string)
//	capabilities  list(string)
//
// Rule implements console.Permission.
type Rule struct {
	expr string
	prg  cel.Program
}

var _ console.Permission = (*Rule)(nil)

func newRuleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("subject_id", cel.StringType),
		cel.Variable("tenant_id", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("capabilities", cel.ListType(cel.StringType)),
	)
}

// NewRule compiles expr. It fails with CONFIGURATION_ERROR when the
// expression does not compile or does not yield a bool.
func NewRule(expr string) (*Rule, error) {
	env, err := newRuleEnv()
	if err != nil {
		return nil, fmt.Errorf("capability: creating CEL env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, model.NewConfigurationError(fmt.Sprintf("rule %q: %v", expr, issues.Err()))
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, model.NewConfigurationError(fmt.Sprintf("rule %q yields %s, want bool", expr, ast.OutputType()))
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, model.NewConfigurationError(fmt.Sprintf("rule %q: %v", expr, err))
	}
	return &Rule{expr: expr, prg: prg}, nil
}

// Expression returns the source expression.
func (r *Rule) Expression() string { return r.expr }

// Eval evaluates the rule for a requester holding caps. A nil requester is
// evaluated with empty identity fields.
func (r *Rule) Eval(rctx *model.RequestContext, caps model.CapabilitySet) (bool, error) {
	vars := map[string]any{
		"subject_id":   "",
		"tenant_id":    "",
		"roles":        []string{},
		"capabilities": caps.Sorted(),
	}
	if rctx != nil {
		vars["subject_id"] = rctx.SubjectID
		vars["tenant_id"] = rctx.TenantID
		if rctx.Roles != nil {
			vars["roles"] = rctx.Roles
		}
	}

	out, _, err := r.prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("capability: evaluating rule %q: %w", r.expr, err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("capability: rule %q returned %T, want bool", r.expr, out.Value())
	}
	return allowed, nil
}

// Allow implements console.Permission.
func (r *Rule) Allow(_ context.Context, req *console.Request) (bool, error) {
	return r.Eval(req.Requester, req.Capabilities)
}
