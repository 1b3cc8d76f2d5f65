package graphs

import "fmt"

// BuildError reports a problem discovered while constructing a graph for a
// specific function, identified by name for diagnostic readability.
type BuildError struct {
	Func string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("graphs: %s: %v", e.Func, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

var errUnreachableExit = fmt.Errorf("exit block is unreachable from entry")
