package gateway

import "errors"

// ErrGateway marks a failed call to an external generation service. It is
// recoverable per task: the cycle converts it into an error event and keeps
// its sibling tasks running.
var ErrGateway = errors.New("gateway call failed")
