package lua

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
)

// Input is the byte cursor behind io.read. Reads consume it; a later read,
// even from a later invocation of the same evaluation, continues where the
// previous one stopped.
type Input struct {
	mu sync.Mutex
	r  *bufio.Reader
}

// NewInput wraps r in a cursor. A nil reader yields an empty cursor.
func NewInput(r io.Reader) *Input {
	if r == nil {
		r = strings.NewReader("")
	}
	return &Input{r: bufio.NewReader(r)}
}

// Reset points the cursor at a fresh reader, discarding any unread bytes.
func (in *Input) Reset(r io.Reader) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if r == nil {
		r = strings.NewReader("")
	}
	in.r = bufio.NewReader(r)
}

// ReadAll drains the cursor.
func (in *Input) ReadAll() ([]byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return io.ReadAll(in.r)
}

// readValue implements the io.read formats against the cursor:
//
//	(no arg)        next line, trimmed; nil at end of input
//	'*a' / '*all'   everything remaining; nil if nothing remains
//	'*l' / '*line'  next line, trimmed; nil at end of input
//	'*n' / '*number' everything remaining parsed as a number; nil if invalid
//	n (integer)     a single read of up to n bytes; nil at end of input
//
// Any other format raises an error inside the interpreter.
func readValue(L *lua.LState, in *Input, f lua.LValue) lua.LValue {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch fv := f.(type) {
	case *lua.LNilType:
		return readLine(in.r)
	case lua.LNumber:
		return readCount(in.r, int(fv))
	case lua.LString:
		switch string(fv) {
		case "*a", "*all":
			data, err := io.ReadAll(in.r)
			if err != nil || len(data) == 0 {
				return lua.LNil
			}
			return lua.LString(data)
		case "*l", "*line":
			return readLine(in.r)
		case "*n", "*number":
			data, err := io.ReadAll(in.r)
			if err != nil || len(data) == 0 {
				return lua.LNil
			}
			n, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
			if err != nil {
				return lua.LNil
			}
			return lua.LNumber(n)
		}
	}
	L.RaiseError("unexpected format %s", f.String())
	return lua.LNil
}

func readLine(r *bufio.Reader) lua.LValue {
	line, err := r.ReadString('\n')
	if len(line) == 0 && err != nil {
		return lua.LNil
	}
	return lua.LString(strings.TrimSpace(line))
}

func readCount(r *bufio.Reader, n int) lua.LValue {
	if n < 0 {
		return lua.LNil
	}
	buf := make([]byte, n)
	m, _ := r.Read(buf)
	if m == 0 {
		return lua.LNil
	}
	return lua.LString(buf[:m])
}

// readUnicode implements read_unicode. The numeric form counts characters
// rather than bytes: it consumes byte by byte and only counts a character
// once the accumulated buffer is valid UTF-8 again. A final buffer that is
// not valid UTF-8 yields nil.
func readUnicode(L *lua.LState, in *Input, f lua.LValue) lua.LValue {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch fv := f.(type) {
	case lua.LNumber:
		return readRunes(in.r, int(fv))
	case lua.LString:
		switch string(fv) {
		case "*a", "*all":
			data, err := io.ReadAll(in.r)
			if err != nil {
				return lua.LNil
			}
			return lua.LString(data)
		case "*l", "*line":
			line, err := in.r.ReadString('\n')
			if len(line) == 0 && err != nil {
				return lua.LNil
			}
			return lua.LString(strings.TrimSpace(line))
		}
	}
	L.RaiseError("unexpected format %s", f.String())
	return lua.LNil
}

func readRunes(r *bufio.Reader, want int) lua.LValue {
	var buf []byte
	remaining := want
	for remaining > 0 {
		b, err := r.ReadByte()
		if err != nil {
			break
		}
		buf = append(buf, b)
		if utf8.Valid(buf) {
			remaining--
		}
	}
	if len(buf) == 0 {
		return lua.LNil
	}
	if !utf8.Valid(buf) {
		return lua.LNil
	}
	return lua.LString(buf)
}
