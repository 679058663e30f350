package normalize

import "fmt"

// ValidationError reports malformed or incomplete input. It is
// user-correctable and maps to a 4xx status at the transport.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid input: field %q: %s", e.Field, e.Reason)
	}
	return "invalid input: " + e.Reason
}
