package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/lumahq/luma/internal/lua"
	"github.com/lumahq/luma/internal/store"
)

func newTestServer(t *testing.T, source string, opts ...Option) *httptest.Server {
	t.Helper()
	eval, err := lua.NewEvaluation(source)
	if err != nil {
		t.Fatalf("NewEvaluation: %v", err)
	}
	ts := httptest.NewServer(New(eval, opts...))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, string(data)
}

func TestIndexEvaluatesScript(t *testing.T) {
	ts := newTestServer(t, "return 'hello ' .. io.read('*a')")

	resp, body := post(t, ts.URL+"/", "world")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body != "hello world" {
		t.Fatalf("body = %q, want %q", body, "hello world")
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id header")
	}
}

func TestIndexEachRequestOwnInput(t *testing.T) {
	ts := newTestServer(t, "return io.read('*a')")

	for _, input := range []string{"first", "second", "third"} {
		resp, body := post(t, ts.URL+"/", input)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if body != input {
			t.Fatalf("body = %q, want %q", body, input)
		}
	}
}

func TestIndexScriptErrorIs400(t *testing.T) {
	ts := newTestServer(t, "error('boom')")

	resp, body := post(t, ts.URL+"/", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body != "" {
		t.Fatalf("body = %q, want empty", body)
	}
}

func TestIndexMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, "return 1")

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestIndexUnknownPath(t *testing.T) {
	ts := newTestServer(t, "return 1")

	resp, _ := post(t, ts.URL+"/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRequestMetadata(t *testing.T) {
	source := `
	local m = require('@luma')
	local r = m.request
	return r.method .. ' ' .. r.path .. ' ' .. r.query.a[1] .. ' ' .. r.headers['x-test'][1]
	`
	ts := newTestServer(t, source)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/?a=1", strings.NewReader(""))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("X-Test", "yes")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if got, want := string(body), "POST / 1 yes"; got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

func TestResponseOverride(t *testing.T) {
	source := `
	local m = require('@luma')
	m.response = {
		status_code = 201,
		headers = { location = '/made' },
		body = 'created',
	}
	return 'ignored'
	`
	ts := newTestServer(t, source)

	resp, body := post(t, ts.URL+"/", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "/made" {
		t.Fatalf("location = %q, want /made", got)
	}
	if body != "created" {
		t.Fatalf("body = %q, want created", body)
	}
}

func TestResponseOverrideJSONBody(t *testing.T) {
	source := `
	local m = require('@luma')
	m.response = { body = { ok = true } }
	return nil
	`
	ts := newTestServer(t, source)

	_, body := post(t, ts.URL+"/", "")
	if body != `{"ok":true}` {
		t.Fatalf("body = %q, want JSON object", body)
	}
}

func TestScriptSeesStore(t *testing.T) {
	st, err := store.New("")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	source := `
	local m = require('@luma')
	local hits = m.store:update({'hits'}, function(values)
		values[1] = values[1] + 1
		return values
	end, {0})
	return hits[1]
	`
	eval, err := lua.NewEvaluation(source, lua.WithStore(st))
	if err != nil {
		t.Fatalf("NewEvaluation: %v", err)
	}
	ts := httptest.NewServer(New(eval))
	t.Cleanup(ts.Close)

	for i := 1; i <= 3; i++ {
		_, body := post(t, ts.URL+"/", "")
		if want := strconv.Itoa(i); body != want {
			t.Fatalf("body = %q, want %q", body, want)
		}
	}
}

func TestConcurrentRequestsBounded(t *testing.T) {
	ts := newTestServer(t, "return io.read('*a')", WithMaxWorkers(2))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, body := post(t, ts.URL+"/", "in")
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			if body != "in" {
				t.Errorf("body = %q, want in", body)
			}
		}()
	}
	wg.Wait()
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, "return 1")

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "return 'ok'")

	post(t, ts.URL+"/", "")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	text := string(data)
	if !strings.Contains(text, `luma_invocations_total{outcome="ok"} 1`) {
		t.Fatalf("metrics missing invocation counter:\n%s", text)
	}
	if !strings.Contains(text, "luma_invocation_duration_seconds") {
		t.Fatalf("metrics missing duration histogram:\n%s", text)
	}
}

func TestMetricsCountErrors(t *testing.T) {
	ts := newTestServer(t, "error('nope')")

	post(t, ts.URL+"/", "")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `luma_invocations_total{outcome="runtime"} 1`) {
		t.Fatalf("metrics missing runtime outcome:\n%s", string(data))
	}
}

func TestSetScriptSwapsBehavior(t *testing.T) {
	eval, err := lua.NewEvaluation("return 'old'")
	if err != nil {
		t.Fatalf("NewEvaluation: %v", err)
	}
	srv := New(eval)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	_, body := post(t, ts.URL+"/", "")
	if body != "old" {
		t.Fatalf("body = %q, want old", body)
	}

	next, err := lua.NewEvaluation("return 'new'")
	if err != nil {
		t.Fatalf("NewEvaluation: %v", err)
	}
	srv.SetScript(next)

	_, body = post(t, ts.URL+"/", "")
	if body != "new" {
		t.Fatalf("body = %q, want new", body)
	}
}
