// Package qlik implements a client session for the Qlik engine API, which speaks JSON-RPC 2.0 over a WebSocket.
//
// A Session owns a single connection and issues one request at a time, waiting for exactly one reply before the next
// request may be sent.  It tracks whether it is connected and which app, if any, is open, and rejects operations that
// the current state does not permit before anything is written to the connection.
package qlik

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/qlik-go/qlik/internal/protocol"
	"github.com/tidwall/gjson"
	"nhooyr.io/websocket"
)

// DefaultURL is the engine endpoint exposed by Qlik Sense Desktop.
const DefaultURL = `ws://localhost:4848/app/`

// sessionCreated is the session state announced by the engine when a new session has been set up for us.
const sessionCreated = `SESSION_CREATED`

// New returns a disconnected session for the engine at the given WebSocket URL.
func New(engineURL string, options ...Option) (*Session, error) {
	u, err := url.Parse(engineURL)
	if err != nil {
		return nil, fmt.Errorf(`%w while parsing engine URL`, err)
	}
	switch u.Scheme {
	case `ws`, `wss`:
	default:
		return nil, fmt.Errorf(`engine URL %q must use ws:// or wss://`, engineURL)
	}
	s := &Session{url: engineURL, handle: protocol.GlobalHandle}
	s.cfg.readLimit = -1
	for _, option := range options {
		err := option(&s.cfg)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dial returns a session that has completed its handshake with the engine.
func Dial(ctx context.Context, engineURL string, options ...Option) (*Session, error) {
	s, err := New(engineURL, options...)
	if err != nil {
		return nil, err
	}
	err = s.Connect(ctx)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// A Session is a connection to the engine along with the state of the app being worked on.
type Session struct {
	url string
	cfg config

	// mu is held for the whole of each operation, which keeps a single request outstanding on conn.
	mu        sync.Mutex
	conn      *websocket.Conn
	connState ConnState
	appState  AppState
	handle    int
}

// URL returns the engine URL of the session.
func (s *Session) URL() string { return s.url }

// Connection returns the connection state.
func (s *Session) Connection() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// App returns the app state.
func (s *Session) App() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appState
}

// Handle returns the handle of the open app.  It returns false if no app is open.
func (s *Session) Handle() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connState != Connected || s.appState != Open {
		return protocol.GlobalHandle, false
	}
	return s.handle, true
}

// Connect dials the engine and waits for it to announce that a session was created.  Connect does not change the app
// state; it remains Void until an app is created or opened.
func (s *Session) Connect(ctx context.Context) error {
	const op = `connect`
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.require(op, guardConnect)
	if err != nil {
		return err
	}

	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, s.url, s.cfg.dialOptions())
	if err != nil {
		return transportError(ctx, op, errors.Wrapf(err, `dialing %v`, s.url))
	}
	conn.SetReadLimit(s.cfg.readLimit)

	raw, err := read(ctx, conn, op)
	if err != nil {
		_ = conn.CloseNow()
		return err
	}
	if gjson.GetBytes(raw, `params.qSessionState`).String() != sessionCreated {
		_ = conn.CloseNow()
		return &Error{Kind: ErrConnection, Op: op, Raw: raw, Err: fmt.Errorf(`engine did not report %v`, sessionCreated)}
	}

	s.conn = conn
	s.connState = Connected
	hog.From(ctx).Debug().Str(`url`, s.url).Msg(`connected to engine`)
	return nil
}

// Close disconnects from the engine.  It always clears the connection and handle, leaving the session Disconnected and
// its app Closed, and may be called any number of times.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conn
	s.conn, s.handle = nil, protocol.GlobalHandle
	s.connState, s.appState = Disconnected, Closed
	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, ``)
	if err != nil && websocket.CloseStatus(err) < 0 {
		_ = conn.CloseNow()
		return errors.Wrap(err, `closing engine connection`)
	}
	return nil
}

// exchange writes req and waits for the one frame that answers it.  The caller must hold s.mu and have checked that
// the session is connected.
func (s *Session) exchange(ctx context.Context, op string, req protocol.Request) (reply, error) {
	js, err := protocol.Encode(req)
	if err != nil {
		return reply{}, &Error{Kind: ErrProtocol, Op: op, Err: err}
	}
	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	if evt := hog.From(ctx).Trace(); evt.Enabled() {
		evt.RawJSON(`request`, js).Msg(`sending engine request`)
	}
	err = s.conn.Write(ctx, websocket.MessageText, js)
	if err != nil {
		return reply{}, transportError(ctx, op, errors.Wrapf(err, `writing %v request`, req.Method))
	}
	raw, err := read(ctx, s.conn, op)
	if err != nil {
		return reply{}, err
	}
	if evt := hog.From(ctx).Trace(); evt.Enabled() {
		evt.RawJSON(`response`, raw).Msg(`received engine response`)
	}
	return reply{op: op, raw: raw}, nil
}

// read waits for a single text frame holding a JSON object.
func read(ctx context.Context, conn *websocket.Conn, op string) (json.RawMessage, error) {
	mt, msg, err := conn.Read(ctx)
	if err != nil {
		return nil, transportError(ctx, op, errors.Wrap(err, `reading engine frame`))
	}
	if mt != websocket.MessageText {
		return nil, &Error{Kind: ErrProtocol, Op: op, Err: fmt.Errorf(`engine sent a %v frame`, mt)}
	}
	if !gjson.ValidBytes(msg) || !gjson.ParseBytes(msg).IsObject() {
		return nil, &Error{Kind: ErrProtocol, Op: op, Raw: msg, Err: errors.New(`engine frame is not a JSON object`)}
	}
	return msg, nil
}

// transportError classifies a failed read or write as a timeout if ctx expired, or a connection failure otherwise.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Op: op, Err: err}
	}
	return &Error{Kind: ErrConnection, Op: op, Err: err}
}

// An Option affects how a Session connects to the engine.
type Option func(*config) error

type config struct {
	timeout    time.Duration
	header     http.Header
	httpClient *http.Client
	rootCAs    *x509.CertPool
	readLimit  int64
}

// Timeout limits how long each request waits for its reply, including the handshake.  Zero, the default, waits
// indefinitely.  When the timeout expires the operation fails with ErrTimeout and the connection is no longer usable.
func Timeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d < 0 {
			return fmt.Errorf(`timeout must not be negative, got %v`, d)
		}
		cfg.timeout = d
		return nil
	}
}

// Header adds an HTTP header to the WebSocket handshake, such as an Authorization header for engines that require it.
func Header(key, value string) Option {
	return func(cfg *config) error {
		if cfg.header == nil {
			cfg.header = make(http.Header)
		}
		cfg.header.Add(key, value)
		return nil
	}
}

// HTTPClient specifies the client used for the WebSocket handshake.  It takes precedence over CertFile.
func HTTPClient(client *http.Client) Option {
	return func(cfg *config) error {
		cfg.httpClient = client
		return nil
	}
}

// CertFile trusts the PEM encoded certificates in path when connecting to a wss:// engine.
func CertFile(path string) Option {
	return func(cfg *config) error {
		pem, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf(`%w while reading engine certificates`, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf(`no certificates found in %q`, path)
		}
		cfg.rootCAs = pool
		return nil
	}
}

// ReadLimit specifies the maximum size of a reply.  Defaults to -1 which imposes no limit, since app scripts can be
// large.
func ReadLimit(limit int64) Option {
	return func(cfg *config) error {
		cfg.readLimit = limit
		return nil
	}
}

func (cfg *config) dialOptions() *websocket.DialOptions {
	opts := &websocket.DialOptions{HTTPHeader: cfg.header, HTTPClient: cfg.httpClient}
	if opts.HTTPClient == nil && cfg.rootCAs != nil {
		opts.HTTPClient = &http.Client{Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{RootCAs: cfg.rootCAs},
		}}
	}
	return opts
}

func (cfg *config) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if cfg.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.timeout)
}
