package lua

import (
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// CompileError reports a script that failed to parse. Nothing was executed
// and no side effects are possible.
type CompileError struct {
	Name    string
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Name, e.Line, e.Column, e.Message)
}

// RuntimeError reports a script that raised an error or hit a type error mid
// execution. Store mutations already committed stand; an open update has
// rolled back.
type RuntimeError struct {
	Message   string
	Traceback string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// TimeoutError reports an invocation that exceeded its deadline. It cannot be
// caught from inside the script.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s (limit %s)", e.Elapsed.Round(time.Millisecond), e.Limit)
}

// StoreError wraps a store failure that crossed into script execution.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %v", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// CapabilityError reports misuse of a capability module: an unresolvable
// require target, malformed fetch options, an unsupported crypto algorithm or
// a bad key/IV length.
type CapabilityError struct {
	Module  string
	Message string
}

func (e *CapabilityError) Error() string {
	if e.Module == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Module, e.Message)
}

// ErrorKind names the error category for logs and metrics: "compile",
// "runtime", "timeout", "store" or "capability", with "error" for anything
// else. A nil error is "ok".
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		compileErr *CompileError
		runtimeErr *RuntimeError
		timeoutErr *TimeoutError
		storeErr   *StoreError
		capErr     *CapabilityError
	)
	switch {
	case errors.As(err, &compileErr):
		return "compile"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &storeErr):
		return "store"
	case errors.As(err, &capErr):
		return "capability"
	case errors.As(err, &runtimeErr):
		return "runtime"
	default:
		return "error"
	}
}

// compileErrorFrom converts a gopher-lua parse or compile failure.
func compileErrorFrom(err error, name string) *CompileError {
	var parseErr *parse.Error
	if errors.As(err, &parseErr) {
		return &CompileError{
			Name:    name,
			Line:    parseErr.Pos.Line,
			Column:  parseErr.Pos.Column,
			Message: strings.TrimSpace(parseErr.Message),
		}
	}
	return &CompileError{Name: name, Message: err.Error()}
}

// runtimeErrorFrom converts an interpreter failure surfaced by PCall.
func runtimeErrorFrom(err error) *RuntimeError {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		return &RuntimeError{
			Message:   apiErr.Object.String(),
			Traceback: apiErr.StackTrace,
		}
	}
	return &RuntimeError{Message: err.Error()}
}
