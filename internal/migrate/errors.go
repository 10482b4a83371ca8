package migrate

import (
	"errors"
	"fmt"
)

// Error kinds reported by Kind and carried on telemetry.
const (
	KindConfiguration = "configuration"
	KindScriptRead    = "script_read"
	KindExecution     = "execution"
)

// ErrEmptyScript is wrapped by ScriptReadError when the script has no SQL.
var ErrEmptyScript = errors.New("script is empty")

// ConfigurationError reports a missing or malformed setting. Nothing was acquired or read.
type ConfigurationError struct {
	Field  string // e.g. DATABASE_URL
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ScriptReadError reports a script that is missing, unreadable or empty.
type ScriptReadError struct {
	Path string
	Err  error
}

func (e *ScriptReadError) Error() string {
	return fmt.Sprintf("script read error: %s: %v", e.Path, e.Err)
}

func (e *ScriptReadError) Unwrap() error { return e.Err }

// ExecutionError reports that the database could not be reached or rejected the script.
// Code and Message come from the engine when it supplied them.
type ExecutionError struct {
	Path    string
	Phase   string // connect, lock or exec
	Code    string
	Message string
	Timeout bool
	Err     error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("execution error during %s", e.Phase)
	if e.Path != "" {
		msg += " of " + e.Path
	}
	if e.Timeout {
		msg += " (timed out)"
	}
	if e.Code != "" {
		msg += fmt.Sprintf(": [%s] %s", e.Code, e.Message)
	} else if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Kind classifies err. It returns "" for nil and for errors outside the taxonomy.
func Kind(err error) string {
	var cfgErr *ConfigurationError
	var readErr *ScriptReadError
	var execErr *ExecutionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &readErr):
		return KindScriptRead
	case errors.As(err, &execErr):
		return KindExecution
	default:
		return ""
	}
}

// ExitCode maps a run error to a process exit status: 0 on success, 2 configuration,
// 3 script read, 4 execution, 1 anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Kind(err) {
	case KindConfiguration:
		return 2
	case KindScriptRead:
		return 3
	case KindExecution:
		return 4
	default:
		return 1
	}
}
