package lua

import (
	"bytes"
	"io"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/lumahq/luma/internal/interrupt"
)

// session is the per-invocation side of an evaluation: output buffers, the
// front-end state, the loaded-module cache and the last error a capability
// raised into the interpreter.
type session struct {
	eval    *Evaluation
	state   *State
	ctrl    *interrupt.Controller
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	loaded  map[string]lua.LValue
	closers []io.Closer
	raised  error
}

// cleanup releases resources capabilities opened during the invocation,
// such as unread response bodies.
func (s *session) cleanup() {
	for _, c := range s.closers {
		c.Close()
	}
	s.closers = nil
}

// newState builds the sandboxed interpreter for one invocation: base, table,
// string and math only, a virtual io table over the input cursor, print and
// require replaced. There is no package loader and no file or process
// access.
func (e *Evaluation) newState(s *session) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	L.SetContext(s.ctrl.Context())

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// OpenBase installs file-loading escapes; take them back out.
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(s.luaPrint))
	L.SetGlobal("require", L.NewFunction(s.luaRequire))
	L.SetGlobal("io", s.ioTable(L))
	return L
}

// ioTable exposes read, write and stderr over the session buffers and the
// shared input cursor.
func (s *session) ioTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "read", L.NewFunction(s.ioRead))
	L.SetField(tbl, "write", L.NewFunction(s.ioWrite))

	stderr := L.NewTable()
	L.SetField(stderr, "write", L.NewFunction(s.stderrWrite))
	L.SetField(tbl, "stderr", stderr)
	return tbl
}

func (s *session) ioRead(L *lua.LState) int {
	L.Push(readValue(L, s.eval.input, L.Get(1)))
	return 1
}

// ioWrite appends its arguments to stdout with no separator and no newline.
// Only strings and numbers are writable.
func (s *session) ioWrite(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		v := L.Get(i)
		switch v.Type() {
		case lua.LTString, lua.LTNumber:
			s.stdout.WriteString(v.String())
		default:
			L.ArgError(i, "string expected")
		}
	}
	return 0
}

// stderrWrite is the write method of io.stderr: arguments joined by tabs,
// no trailing newline. Argument 1 is the receiver.
func (s *session) stderrWrite(L *lua.LState) int {
	top := L.GetTop()
	for i := 2; i <= top; i++ {
		if i > 2 {
			s.stderr.WriteByte('\t')
		}
		s.stderr.WriteString(L.ToStringMeta(L.Get(i)).String())
	}
	return 0
}

// luaPrint mirrors the stock print, writing to the session buffer instead of
// the process stdout.
func (s *session) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		if i > 1 {
			s.stdout.WriteByte('\t')
		}
		s.stdout.WriteString(L.ToStringMeta(L.Get(i)).String())
	}
	s.stdout.WriteByte('\n')
	return 0
}

// fail records err and raises it inside the interpreter. If it unwinds all
// the way out, classify reports the typed error instead of a plain runtime
// error.
func (s *session) fail(L *lua.LState, err error) {
	s.raised = err
	L.RaiseError("%s", err.Error())
}

// classify maps an interpreter failure to the error taxonomy. A capability
// or store error that unwound uncaught keeps its type; anything else is the
// script's own fault.
func (s *session) classify(err error) error {
	rerr := runtimeErrorFrom(err)
	if s.raised != nil && strings.Contains(rerr.Message, s.raised.Error()) {
		return s.raised
	}
	return rerr
}
