package qlik

import (
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

var errNotArray = errors.New(`result.qDocList is not an array`)

// A Doc describes an app returned by ListApps.
type Doc struct {
	Name           string          `json:"qDocName"`
	ID             string          `json:"qDocId"`
	Title          string          `json:"qTitle,omitempty"`
	LastReloadTime string          `json:"qLastReloadTime,omitempty"`
	FileSize       float64         `json:"qFileSize,omitempty"`
	ReadOnly       bool            `json:"qReadOnly,omitempty"`
	Meta           json.RawMessage `json:"qMeta,omitempty"`
}

// LastReload parses LastReloadTime, which the engine formats differently across releases.  Times without a zone are
// taken as UTC.  It returns the zero time and false if the app was never reloaded or the time could not be parsed.
func (d Doc) LastReload() (time.Time, bool) {
	if d.LastReloadTime == `` {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(d.LastReloadTime, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
