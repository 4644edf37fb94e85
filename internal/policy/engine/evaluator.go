package engine

import "context"

// PasswordResult holds the result of password policy evaluation.
type PasswordResult struct {
	Valid      bool
	Violations []string
}

// Evaluator evaluates password policies using OPA or other engines.
type Evaluator interface {
	// EvaluatePassword evaluates the configured password policy against the
	// candidate password. Returns whether it is acceptable and, if not, the
	// violation codes (e.g. "too_short").
	EvaluatePassword(ctx context.Context, password string) (PasswordResult, error)
}
