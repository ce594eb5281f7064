package lua

import (
	"io"
	"net/http"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/lumahq/luma/internal/value"
)

// openHTTP builds the @luma/http module with the fetch method.
func (s *session) openHTTP(L *lua.LState) lua.LValue {
	ud := L.NewUserData()
	mt := L.CreateTable(0, 1)
	idx := L.CreateTable(0, 1)
	idx.RawSetString("fetch", L.NewFunction(s.httpFetch))
	mt.RawSetString("__index", idx)
	L.SetMetatable(ud, mt)
	return ud
}

// httpResponse is what fetch hands back to the script: header metadata plus
// a cursor over the body, so the body can be consumed incrementally with the
// same read formats as io.read.
type httpResponse struct {
	charset     string
	contentType string
	headers     map[string][]string
	status      int
	body        *Input
}

// httpFetch performs fetch(url, options). Options may carry method, headers
// and body. Safe methods never send a body. A response comes back for any
// status code; only transport failures raise.
func (s *session) httpFetch(L *lua.LState) int {
	rawURL := L.CheckString(2)
	opts := L.OptTable(3, nil)

	method := "GET"
	var body io.Reader
	if opts != nil {
		if m, ok := opts.RawGetString("method").(lua.LString); ok {
			method = strings.ToUpper(string(m))
		}
	}
	if !isSafeMethod(method) {
		body = strings.NewReader(optBody(opts))
	}

	req, err := http.NewRequestWithContext(s.ctrl.Context(), method, rawURL, body)
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleHTTP, Message: err.Error()})
		return 0
	}
	applyHeaders(req, opts)

	s.eval.logger.Debug("sending http request", "method", method, "url", rawURL)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleHTTP, Message: err.Error()})
		return 0
	}
	s.closers = append(s.closers, resp.Body)

	contentType, charset := splitContentType(resp.Header.Get("Content-Type"))
	headers := make(map[string][]string, len(resp.Header))
	for name, values := range resp.Header {
		headers[strings.ToLower(name)] = values
	}
	L.Push(s.responseValue(L, &httpResponse{
		charset:     charset,
		contentType: contentType,
		headers:     headers,
		status:      resp.StatusCode,
		body:        NewInput(resp.Body),
	}))
	return 1
}

// responseValue wraps a response in a userdata with field access and the
// json, read and read_unicode methods.
func (s *session) responseValue(L *lua.LState, r *httpResponse) lua.LValue {
	ud := L.NewUserData()
	ud.Value = r
	mt := L.CreateTable(0, 1)
	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		switch key := L.CheckString(2); key {
		case "charset":
			L.Push(lua.LString(r.charset))
		case "content_type":
			L.Push(lua.LString(r.contentType))
		case "headers":
			L.Push(goToLua(L, headerValue(r.headers)))
		case "ok":
			L.Push(lua.LBool(r.status >= 200 && r.status < 300))
		case "status", "status_code":
			L.Push(lua.LNumber(r.status))
		case "json":
			L.Push(L.NewFunction(func(L *lua.LState) int { return s.responseJSON(L, r) }))
		case "read":
			L.Push(L.NewFunction(func(L *lua.LState) int {
				L.Push(readValue(L, r.body, L.Get(2)))
				return 1
			}))
		case "read_unicode":
			L.Push(L.NewFunction(func(L *lua.LState) int {
				L.Push(readUnicode(L, r.body, L.Get(2)))
				return 1
			}))
		default:
			L.Push(lua.LNil)
		}
		return 1
	}))
	L.SetMetatable(ud, mt)
	return ud
}

// responseJSON decodes the remaining body as JSON. Any content type is
// accepted, with a warning when it is not application/json.
func (s *session) responseJSON(L *lua.LState, r *httpResponse) int {
	if r.contentType != "application/json" {
		s.eval.logger.Warn("content type is not application/json, convert with caution",
			"content_type", r.contentType)
	}
	data, err := r.body.ReadAll()
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleHTTP, Message: err.Error()})
		return 0
	}
	v, err := value.DecodeJSON(data)
	if err != nil {
		s.fail(L, &CapabilityError{Module: ModuleHTTP, Message: err.Error()})
		return 0
	}
	L.Push(goToLua(L, v))
	return 1
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// optBody reads the body option as a string; numbers coerce, anything else
// sends empty.
func optBody(opts *lua.LTable) string {
	if opts == nil {
		return ""
	}
	switch v := opts.RawGetString("body").(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return v.String()
	}
	return ""
}

// applyHeaders copies the headers option onto the request. String values go
// through untouched; everything else is rendered as JSON.
func applyHeaders(req *http.Request, opts *lua.LTable) {
	if opts == nil {
		return
	}
	tbl, ok := opts.RawGetString("headers").(*lua.LTable)
	if !ok {
		return
	}
	headers, ok := luaToGo(tbl).(map[string]any)
	if !ok {
		return
	}
	for k, v := range headers {
		if str, ok := v.(string); ok {
			req.Header.Set(k, str)
			continue
		}
		if data, err := value.EncodeJSON(v); err == nil {
			req.Header.Set(k, string(data))
		}
	}
}

// headerValue widens a header map for the Lua conversion layer.
func headerValue(headers map[string][]string) map[string]any {
	out := make(map[string]any, len(headers))
	for name, values := range headers {
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		out[name] = list
	}
	return out
}

// splitContentType separates a Content-Type header into media type and
// charset, with the conventional defaults when either is missing.
func splitContentType(header string) (contentType, charset string) {
	contentType, charset = "text/plain", "utf-8"
	if header == "" {
		return contentType, charset
	}
	contentType = header
	if i := strings.Index(header, ";"); i >= 0 {
		contentType = header[:i]
		for _, param := range strings.Split(header[i+1:], ";") {
			k, v, ok := strings.Cut(param, "=")
			if ok && strings.EqualFold(strings.TrimSpace(k), "charset") {
				charset = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}
	}
	return strings.TrimSpace(contentType), charset
}
