package qlik

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/swdunlop/qlik-go/qlik/internal/protocol"
	"nhooyr.io/websocket"
)

const (
	helloCreated = `{"jsonrpc":"2.0","method":"OnConnected","params":{"qSessionState":"SESSION_CREATED"}}`

	// noReply makes the fake engine read a request and then never answer it.
	noReply = ``
)

// fakeEngine pushes a hello frame to each client, then answers requests with queued replies in order.
type fakeEngine struct {
	srv   *httptest.Server
	hello string

	mu       sync.Mutex
	replies  []string
	requests []protocol.Request
}

func newFakeEngine(t *testing.T, hello string, replies ...string) *fakeEngine {
	t.Helper()
	fe := &fakeEngine{hello: hello, replies: replies}
	fe.srv = httptest.NewServer(http.HandlerFunc(fe.serve))
	t.Cleanup(fe.srv.Close)
	return fe
}

func (fe *fakeEngine) URL() string {
	return `ws` + strings.TrimPrefix(fe.srv.URL, `http`) + `/app/`
}

// dial connects a session to the engine and closes it when the test ends.
func (fe *fakeEngine) dial(t *testing.T, options ...Option) *Session {
	t.Helper()
	s, err := Dial(context.Background(), fe.URL(), options...)
	if err != nil {
		t.Fatalf(`dial: %v`, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (fe *fakeEngine) Requests() []protocol.Request {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return append([]protocol.Request(nil), fe.requests...)
}

func (fe *fakeEngine) serve(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = c.CloseNow() }()
	c.SetReadLimit(-1)
	ctx := r.Context()
	if c.Write(ctx, websocket.MessageText, []byte(fe.hello)) != nil {
		return
	}
	for {
		_, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		reply, ok := fe.next(msg)
		if !ok {
			return
		}
		if reply == noReply {
			continue
		}
		if c.Write(ctx, websocket.MessageText, []byte(reply)) != nil {
			return
		}
	}
}

func (fe *fakeEngine) next(msg []byte) (string, bool) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	var req protocol.Request
	_ = json.Unmarshal(msg, &req)
	fe.requests = append(fe.requests, req)
	if len(fe.replies) == 0 {
		return ``, false
	}
	reply := fe.replies[0]
	fe.replies = fe.replies[1:]
	return reply, true
}
