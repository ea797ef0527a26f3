package events

// Error reports a task-local failure to the client without terminating the
// cycle's sibling tasks.
type Error struct {
	Base
	Message string
}

// NewError creates an error event.
func NewError(message string) Error {
	return Error{Base: NewBase(KindError), Message: message}
}
