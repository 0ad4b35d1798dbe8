package qlik

import (
	"encoding/json"
	"fmt"

	"github.com/swdunlop/qlik-go/qlik/internal/protocol"
	"github.com/tidwall/gjson"
)

// A reply is the raw frame the engine sent in answer to a request.  Fields are looked up by path; nothing beyond their
// presence and JSON type is validated.
type reply struct {
	op  string
	raw json.RawMessage
}

func (r reply) has(path string) bool {
	return gjson.GetBytes(r.raw, path).Exists()
}

// field returns the value at path, or an ErrProtocol error if it is missing or not of the expected type.
func (r reply) field(path string, want gjson.Type) (gjson.Result, error) {
	v := gjson.GetBytes(r.raw, path)
	switch {
	case !v.Exists():
		return v, r.fail(fmt.Errorf(`missing %v`, path))
	case want == gjson.True || want == gjson.False:
		if v.Type != gjson.True && v.Type != gjson.False {
			return v, r.fail(fmt.Errorf(`%v is %v, not a boolean`, path, v.Type))
		}
	case want == gjson.JSON:
		// any object or array
	case v.Type != want:
		return v, r.fail(fmt.Errorf(`%v is %v, not %v`, path, v.Type, want))
	}
	return v, nil
}

// fail returns an ErrProtocol error for the reply; if the engine reported an error, that takes precedence over cause.
func (r reply) fail(cause error) error {
	if e := gjson.GetBytes(r.raw, `error`); e.IsObject() {
		var engineErr protocol.Error
		if json.Unmarshal([]byte(e.Raw), &engineErr) == nil {
			cause = fmt.Errorf(`%w (%v)`, &engineErr, cause)
		}
	}
	return &Error{Kind: ErrProtocol, Op: r.op, Raw: r.raw, Err: cause}
}
