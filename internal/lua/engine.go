// Package lua compiles scripts once and evaluates them in sandboxed
// interpreter states. Each invocation gets a fresh state wired to the
// shared input cursor, the store and the capability modules; the state
// is torn down when the invocation returns.
package lua

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/lumahq/luma/internal/interrupt"
	"github.com/lumahq/luma/internal/store"
)

// Version is reported to scripts as the _VERSION field of the core module.
const Version = "0.1.0"

// DefaultTimeout bounds an invocation when no explicit limit is set.
const DefaultTimeout = 30 * time.Second

// Evaluation is a script compiled once and ready to be invoked any number
// of times. The compiled function and the input cursor are shared across
// invocations; everything else is per invocation.
type Evaluation struct {
	name    string
	source  string
	proto   *lua.FunctionProto
	input   *Input
	store   *store.Store
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Evaluation.
type Option func(*Evaluation)

// WithName sets the chunk name used in compile and runtime errors.
func WithName(name string) Option {
	return func(e *Evaluation) { e.name = name }
}

// WithStore attaches a store. Without one, the store binding reads nil and
// writes are dropped.
func WithStore(s *store.Store) Option {
	return func(e *Evaluation) { e.store = s }
}

// WithInput sets the byte stream behind io.read.
func WithInput(r io.Reader) Option {
	return func(e *Evaluation) { e.input = NewInput(r) }
}

// WithTimeout overrides the default invocation limit. Zero or negative
// disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluation) { e.timeout = d }
}

// WithLogger sets the logger used for per-invocation debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluation) { e.logger = logger }
}

// NewEvaluation compiles source. A malformed script is rejected here with a
// *CompileError; nothing from it will ever run.
func NewEvaluation(source string, opts ...Option) (*Evaluation, error) {
	e := &Evaluation{
		name:    "(script)",
		source:  source,
		input:   NewInput(nil),
		timeout: DefaultTimeout,
		logger:  slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	chunk, err := parse.Parse(strings.NewReader(source), e.name)
	if err != nil {
		return nil, compileErrorFrom(err, e.name)
	}
	proto, err := lua.Compile(chunk, e.name)
	if err != nil {
		return nil, compileErrorFrom(err, e.name)
	}
	e.proto = proto
	return e, nil
}

// Check parses source and reports a *CompileError without building an
// evaluation. Valid scripts return nil.
func Check(source, name string) error {
	if _, err := parse.Parse(strings.NewReader(source), name); err != nil {
		return compileErrorFrom(err, name)
	}
	return nil
}

// Name returns the chunk name.
func (e *Evaluation) Name() string {
	return e.name
}

// SetInput replaces the input stream. Unread bytes from the previous stream
// are discarded.
func (e *Evaluation) SetInput(r io.Reader) {
	e.input.Reset(r)
}

// Fork returns an evaluation sharing the compiled function, store and limits
// but reading from its own input stream. Front-ends serving concurrent
// requests fork once per request so input cursors never interleave.
func (e *Evaluation) Fork(r io.Reader) *Evaluation {
	clone := *e
	clone.input = NewInput(r)
	return &clone
}

// State carries front-end context across one invocation: the front-end fills
// Request before the call and reads Response after it. Scripts see both
// through the core module.
type State struct {
	Request  any
	Response any
}

// Outcome is what one invocation produced: the script's first returned value
// and the bytes it printed while running.
type Outcome struct {
	Value    any
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Evaluate runs the script once with an empty state.
func (e *Evaluation) Evaluate(ctx context.Context) (*Outcome, error) {
	return e.evaluate(ctx, &State{})
}

// EvaluateWithState runs the script once against st. The script observes
// st.Request and its response assignment lands in st.Response.
func (e *Evaluation) EvaluateWithState(ctx context.Context, st *State) (*Outcome, error) {
	if st == nil {
		st = &State{}
	}
	return e.evaluate(ctx, st)
}

func (e *Evaluation) evaluate(ctx context.Context, st *State) (*Outcome, error) {
	start := time.Now()
	ctrl := interrupt.New(ctx, e.timeout)
	defer ctrl.Stop()

	s := &session{eval: e, state: st, ctrl: ctrl}
	defer s.cleanup()
	L := e.newState(s)
	defer L.Close()

	L.Push(L.NewFunctionFromProto(e.proto))
	err := L.PCall(0, lua.MultRet, nil)
	elapsed := time.Since(start)

	// The deadline may fire between instructions or inside a capability
	// call, and a script pcall can swallow the raised error. The controller
	// is the authority: once it expired, the invocation timed out no matter
	// what the interpreter reported.
	if ctrl.Expired() {
		e.logger.Warn("invocation timed out", "name", e.name, "limit", ctrl.Limit())
		return nil, &TimeoutError{Elapsed: elapsed, Limit: ctrl.Limit()}
	}
	if err != nil {
		return nil, s.classify(err)
	}

	var ret any
	if L.GetTop() > 0 {
		ret = luaToGo(L.Get(1))
	}
	e.logger.Debug("script evaluated", "name", e.name, "duration", elapsed)
	return &Outcome{
		Value:    ret,
		Stdout:   s.stdout.Bytes(),
		Stderr:   s.stderr.Bytes(),
		Duration: elapsed,
	}, nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
