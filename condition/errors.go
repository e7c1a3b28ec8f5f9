package condition

import "fmt"

// SyntaxError reports a condition that failed static validation, either
// because it is malformed or because it uses a construct outside the
// supported grammar. Conditions that produce a SyntaxError are rejected
// before they are ever stored or evaluated.
type SyntaxError struct {
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("invalid condition at position %d: %s", e.Pos, e.Message)
	}
	return "invalid condition: " + e.Message
}

// EvalError reports a condition that parsed cleanly but failed at
// evaluation time, e.g. arithmetic on a missing telemetry reading or a
// division by zero. Rules whose evaluation fails are surfaced with
// status "error" rather than raising an alarm.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return e.Message
}

func evalErrorf(format string, args ...any) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}

func syntaxErrorf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
