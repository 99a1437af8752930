package facilitator

import "fmt"

// Error reports a failed facilitator round trip: a transport fault, a non-OK
// status, or a rejecting response envelope.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("facilitator %s failed (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("facilitator %s failed: %s", e.Op, e.Message)
}
