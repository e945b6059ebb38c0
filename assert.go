package telegraph

import "fmt"

// assertf panics with an error wrapping ErrContractViolation when cond is
// false. It is used for invariants whose failure means the session state can
// no longer be trusted.
func assertf(cond bool, format string, args ...any) {
	if cond {
		return
	}
	panic(fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...)))
}

// must turns an unexpected error from an internal call into a contract
// violation.
func must(err error, what string) {
	if err != nil {
		panic(fmt.Errorf("%w: %s: %w", ErrContractViolation, what, err))
	}
}
