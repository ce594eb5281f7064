package server

import (
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketEvaluatesMessage(t *testing.T) {
	ts := newTestServer(t, "return 'pong:' .. io.read('*a')")
	conn := dialWS(t, ts.URL)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reply.OK {
		t.Fatalf("reply not ok: %+v", reply)
	}
	if reply.Value != "pong:ping" {
		t.Fatalf("value = %#v, want pong:ping", reply.Value)
	}
}

func TestWebSocketEachMessageOwnInput(t *testing.T) {
	ts := newTestServer(t, "return io.read('*a')")
	conn := dialWS(t, ts.URL)

	for _, input := range []string{"one", "two", "three"} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(input)); err != nil {
			t.Fatalf("write %q: %v", input, err)
		}
		var reply wsReply
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("read after %q: %v", input, err)
		}
		if !reply.OK || reply.Value != input {
			t.Fatalf("reply = %+v, want value %q", reply, input)
		}
	}
}

func TestWebSocketErrorFrame(t *testing.T) {
	ts := newTestServer(t, "error('no dice')")
	conn := dialWS(t, ts.URL)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.OK {
		t.Fatalf("reply ok, want error frame: %+v", reply)
	}
	if reply.Kind != "runtime" {
		t.Fatalf("kind = %q, want runtime", reply.Kind)
	}
	if !strings.Contains(reply.Error, "no dice") {
		t.Fatalf("error = %q, want it to mention no dice", reply.Error)
	}
}

func TestWebSocketStructuredValue(t *testing.T) {
	ts := newTestServer(t, "return { n = 42 }")
	conn := dialWS(t, ts.URL)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	obj, ok := reply.Value.(map[string]any)
	if !ok {
		t.Fatalf("value = %#v, want object", reply.Value)
	}
	if obj["n"] != float64(42) {
		t.Fatalf("n = %#v, want 42", obj["n"])
	}
}
