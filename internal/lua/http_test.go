package lua

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestHTTPFetchGet(t *testing.T) {
	body := "<html>content</html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, body)
	}))
	defer srv.Close()

	source := `
	local m = require('@luma/http')
	local res = m:fetch('` + srv.URL + `/html')
	return res:read('*a')
	`
	out := evalScript(t, source, "")
	if out.Value != body {
		t.Fatalf("value = %#v, want %q", out.Value, body)
	}
}

func TestHTTPFetchSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("a"); got != "b" {
			t.Errorf("header a = %q, want b", got)
		}
		io.WriteString(w, "a")
	}))
	defer srv.Close()

	source := `
	local m = require('@luma/http')
	local res = m:fetch('` + srv.URL + `/headers', { headers = { a = 'b' } })
	return res:read('*a')
	`
	out := evalScript(t, source, "")
	if out.Value != "a" {
		t.Fatalf("value = %#v, want a", out.Value)
	}
}

func TestHTTPFetchPostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		if string(data) != "1+1" {
			t.Errorf("body = %q, want 1+1", data)
		}
		io.WriteString(w, "2")
	}))
	defer srv.Close()

	source := `
	local m = require('@luma/http')
	local res = m:fetch('` + srv.URL + `/add', {
	  method = 'POST',
	  body = '1+1',
	})
	return res:read('*a')
	`
	out := evalScript(t, source, "")
	if out.Value != "2" {
		t.Fatalf("value = %#v, want 2", out.Value)
	}
}

func TestHTTPFetchSafeMethodSendsNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if len(data) != 0 {
			t.Errorf("body = %q, want empty", data)
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	source := `
	local m = require('@luma/http')
	local res = m:fetch('` + srv.URL + `', { method = 'GET', body = 'ignored' })
	return res:read('*a')
	`
	out := evalScript(t, source, "")
	if out.Value != "ok" {
		t.Fatalf("value = %#v, want ok", out.Value)
	}
}

func TestHTTPFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"a":1}`)
	}))
	defer srv.Close()

	source := `
	local m = require('@luma/http')
	local res = m:fetch('` + srv.URL + `/json')
	return res:json()
	`
	out := evalScript(t, source, "")
	want := map[string]any{"a": float64(1)}
	if !reflect.DeepEqual(out.Value, want) {
		t.Fatalf("value = %#v, want %#v", out.Value, want)
	}
}

func TestHTTPFetchReadUnicode(t *testing.T) {
	body := "<html>中文</html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, body)
	}))
	defer srv.Close()

	source := `
	local m = require('@luma/http')
	local res = m:fetch('` + srv.URL + `/html')
	return res:read_unicode('*a')
	`
	out := evalScript(t, source, "")
	if out.Value != body {
		t.Fatalf("value = %#v, want %q", out.Value, body)
	}
}

func TestHTTPFetchResponseMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		w.Header().Set("X-Custom", "custom-value")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "missing")
	}))
	defer srv.Close()

	source := `
	local m = require('@luma/http')
	local res = m:fetch('` + srv.URL + `')
	return {
	  ok = res.ok,
	  status = res.status,
	  status_code = res.status_code,
	  content_type = res.content_type,
	  charset = res.charset,
	  custom = res.headers['x-custom'][1],
	}
	`
	out := evalScript(t, source, "")
	want := map[string]any{
		"ok":           false,
		"status":       float64(404),
		"status_code":  float64(404),
		"content_type": "text/html",
		"charset":      "ISO-8859-1",
		"custom":       "custom-value",
	}
	if !reflect.DeepEqual(out.Value, want) {
		t.Fatalf("value = %#v, want %#v", out.Value, want)
	}
}

func TestHTTPFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	source := "return require('@luma/http'):fetch('" + srv.URL + "')"
	e := newTestEvaluation(t, source, "")
	_, err := e.Evaluate(context.Background())
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("error = %v, want CapabilityError", err)
	}
	if capErr.Module != ModuleHTTP {
		t.Fatalf("module = %q, want %q", capErr.Module, ModuleHTTP)
	}
}

func TestHTTPFetchIncrementalRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "first\nsecond\n")
	}))
	defer srv.Close()

	source := `
	local m = require('@luma/http')
	local res = m:fetch('` + srv.URL + `')
	local a = res:read('*l')
	local b = res:read('*l')
	return a .. '|' .. b
	`
	out := evalScript(t, source, "")
	if out.Value != "first|second" {
		t.Fatalf("value = %#v, want first|second", out.Value)
	}
}
