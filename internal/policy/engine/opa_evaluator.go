// Package engine evaluates password policies with OPA Rego. The policy sees
// only derived traits of the candidate password (length, character classes),
// never the password itself.
package engine

import (
	"context"
	"fmt"
	"unicode"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const policyModuleName = "password_policy.rego"

// Default Rego policy: at least 8 characters, with at least one letter and one digit.
const defaultRegoPolicy = `package asc.password

default valid = false

violations contains "too_short" if {
	input.password.length < 8
}

violations contains "missing_letter" if {
	not input.password.has_letter
}

violations contains "missing_digit" if {
	not input.password.has_digit
}

valid if {
	count(violations) == 0
}
`

// OPAEvaluator evaluates password policies using OPA Rego.
type OPAEvaluator struct {
	policy string
}

// NewOPAEvaluator returns an OPA-based password policy evaluator.
// policy is the Rego source to use; empty means the default policy.
func NewOPAEvaluator(policy string) *OPAEvaluator {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	return &OPAEvaluator{policy: policy}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the configured policy.
// Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{policyModuleName: e.policy})
	if err != nil {
		return fmt.Errorf("compile password policy: %w", err)
	}
	q := rego.New(
		rego.Query("data.asc.password.valid"),
		rego.Compiler(compiler),
		rego.Input(buildInput("probe1234")),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval password policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluatePassword evaluates the configured Rego policy against the candidate password.
func (e *OPAEvaluator) EvaluatePassword(ctx context.Context, password string) (PasswordResult, error) {
	compiler, err := ast.CompileModules(map[string]string{policyModuleName: e.policy})
	if err != nil {
		return PasswordResult{}, fmt.Errorf("compile password policy: %w", err)
	}
	input := buildInput(password)

	out := PasswordResult{Valid: false}

	validQuery := rego.New(
		rego.Query("data.asc.password.valid"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	validRS, err := validQuery.Eval(ctx)
	if err != nil {
		return PasswordResult{}, fmt.Errorf("eval password policy: %w", err)
	}
	if len(validRS) > 0 && len(validRS[0].Expressions) > 0 {
		if v, ok := validRS[0].Expressions[0].Value.(bool); ok {
			out.Valid = v
		}
	}

	violationsQuery := rego.New(
		rego.Query("data.asc.password.violations"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	violationsRS, err := violationsQuery.Eval(ctx)
	if err == nil && len(violationsRS) > 0 && len(violationsRS[0].Expressions) > 0 {
		if vs, ok := violationsRS[0].Expressions[0].Value.([]interface{}); ok {
			for _, v := range vs {
				if s, ok := v.(string); ok {
					out.Violations = append(out.Violations, s)
				}
			}
		}
	}

	return out, nil
}

func buildInput(password string) map[string]interface{} {
	var hasLetter, hasDigit, hasUpper, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
			if unicode.IsUpper(r) {
				hasUpper = true
			}
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	return map[string]interface{}{
		"password": map[string]interface{}{
			"length":     len([]rune(password)),
			"has_letter": hasLetter,
			"has_upper":  hasUpper,
			"has_digit":  hasDigit,
			"has_symbol": hasSymbol,
		},
	}
}
