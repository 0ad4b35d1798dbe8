// Package protocol defines the wire protocol for the subset of JSON-RPC 2.0 spoken by the Qlik engine.  Requests
// carry an object handle instead of an ID and only ever use positional string parameters.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC version sent with every request.
const Version = `2.0`

// GlobalHandle addresses the engine's global object rather than an open app.
const GlobalHandle = -1

// A Method names an engine API function.
type Method string

// Methods used by the client.
const (
	CreateApp   Method = `CreateApp`
	CreateDocEx Method = `CreateDocEx`
	GetDocList  Method = `GetDocList`
	OpenDoc     Method = `OpenDoc`
	DoSave      Method = `DoSave`
	DeleteApp   Method = `DeleteApp`
	GetScript   Method = `GetScript`
	SetScript   Method = `SetScript`
)

// A Request is a message sent from the client to the engine.
type Request struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  Method   `json:"method"`
	Handle  int      `json:"handle"`
	Params  []string `json:"params"`
}

// New returns a request for method against the object identified by handle.  Params is never nil, so the request
// always encodes an array even when there are no parameters.
func New(method Method, handle int, params ...string) Request {
	if params == nil {
		params = []string{}
	}
	return Request{JSONRPC: Version, Method: method, Handle: handle, Params: params}
}

// Encode returns the JSON text frame for req.
func Encode(req Request) ([]byte, error) {
	if req.Params == nil {
		req.Params = []string{}
	}
	js, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf(`%w while encoding %v request`, err, req.Method)
	}
	return js, nil
}

// An Error is the error object the engine returns in place of a result.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf(`engine error %d: %s`, e.Code, e.Message)
}
