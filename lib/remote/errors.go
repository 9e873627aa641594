package remote

import "fmt"

// ConnectionError means the session never got to run the script:
// dial, handshake, authentication or channel setup failed.
type ConnectionError struct {
	Addr  string
	Stage string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ssh %s to %s failed: %v", e.Stage, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ExecutionError means the script ran and exited non-zero.
type ExecutionError struct {
	ExitCode int
	Signal   string
}

func (e *ExecutionError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("remote script killed by signal %s", e.Signal)
	}
	return fmt.Sprintf("remote script exited with status %d", e.ExitCode)
}
