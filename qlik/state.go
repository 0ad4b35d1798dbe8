package qlik

import "fmt"

// ConnState is the state of the websocket connection to the engine.
type ConnState int

const (
	Disconnected ConnState = iota
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return `disconnected`
	case Connected:
		return `connected`
	default:
		return fmt.Sprintf(`ConnState(%d)`, int(s))
	}
}

// AppState is the state of the app the session is working with.
type AppState int

const (
	Void   AppState = iota // no app has been created or opened
	Create                 // an app was created but not opened
	Open                   // an app is open and the session holds its handle
	Closed                 // the session was disconnected
)

func (s AppState) String() string {
	switch s {
	case Void:
		return `void`
	case Create:
		return `create`
	case Open:
		return `open`
	case Closed:
		return `closed`
	default:
		return fmt.Sprintf(`AppState(%d)`, int(s))
	}
}

// A guard lists the states in which an operation may be invoked.  An empty apps list permits any app state.
type guard struct {
	conn ConnState
	apps []AppState
}

var (
	// connecting needs a fresh session.
	guardConnect = guard{conn: Disconnected, apps: []AppState{Void}}

	// global requests only need a connection.
	guardGlobal = guard{conn: Connected}

	// create and open move the app state forward, so they cannot run once an app is open.
	guardLoad = guard{conn: Connected, apps: []AppState{Void, Create}}

	// app requests need the handle of an open app.
	guardApp = guard{conn: Connected, apps: []AppState{Open}}
)

// require returns an ErrState error unless the session satisfies g.  The caller must hold s.mu.
func (s *Session) require(op string, g guard) error {
	if s.connState != g.conn {
		return &Error{Kind: ErrState, Op: op, Err: fmt.Errorf(`session is %v, must be %v`, s.connState, g.conn)}
	}
	if len(g.apps) == 0 {
		return nil
	}
	for _, st := range g.apps {
		if s.appState == st {
			return nil
		}
	}
	return &Error{Kind: ErrState, Op: op, Err: fmt.Errorf(`app is %v, must be one of %v`, s.appState, g.apps)}
}

// setHandle stores the app handle; it only takes effect once the app state is Open.  The caller must hold s.mu.
func (s *Session) setHandle(handle int) {
	if s.appState == Open {
		s.handle = handle
	}
}
