package qlik

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/qlik-go/qlik/internal/protocol"
	"github.com/tidwall/gjson"
)

// AppSuffix is the file extension of Qlik apps.
const AppSuffix = `.qvf`

// AppName trims name and adds AppSuffix unless it is already present.
func AppName(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, AppSuffix) {
		name += AppSuffix
	}
	return name
}

// CreateApp asks the engine to create an app and returns its ID, which is a .qvf path on Qlik Sense Desktop and a
// unique ID on a server.  If the engine processed the request but declined to create the app, CreateApp returns false
// without an error and the app state is unchanged.
func (s *Session) CreateApp(ctx context.Context, name string) (id string, ok bool, err error) {
	const op = `create app`
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.require(op, guardLoad)
	if err != nil {
		return ``, false, err
	}

	name = AppName(name)
	ret, err := s.exchange(ctx, op, protocol.New(protocol.CreateApp, protocol.GlobalHandle, name))
	if err != nil {
		return ``, false, err
	}
	success, err := ret.field(`result.qSuccess`, gjson.True)
	if err != nil {
		return ``, false, err
	}
	if !success.Bool() {
		hog.From(ctx).Warn().Str(`app`, name).Msg(`engine processed create request but did not create the app`)
		return ``, false, nil
	}
	appID, err := ret.field(`result.qAppId`, gjson.String)
	if err != nil {
		return ``, false, err
	}

	s.appState = Create
	hog.From(ctx).Info().Str(`app`, name).Str(`id`, appID.String()).Msg(`created app`)
	return appID.String(), true, nil
}

// OpenApp opens the app with the given ID and returns the type and handle of the object the engine opened.  The
// handle is retained by the session for subsequent app requests.
func (s *Session) OpenApp(ctx context.Context, appID string) (typ string, handle int, err error) {
	const op = `open app`
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.require(op, guardLoad)
	if err != nil {
		return ``, protocol.GlobalHandle, err
	}

	ret, err := s.exchange(ctx, op, protocol.New(protocol.OpenDoc, protocol.GlobalHandle, appID))
	if err != nil {
		return ``, protocol.GlobalHandle, err
	}
	_, err = ret.field(`result.qReturn`, gjson.JSON)
	if err != nil {
		return ``, protocol.GlobalHandle, err
	}
	h, err := ret.field(`result.qReturn.qHandle`, gjson.Number)
	if err != nil {
		return ``, protocol.GlobalHandle, err
	}
	t, err := ret.field(`result.qReturn.qType`, gjson.String)
	if err != nil {
		return ``, protocol.GlobalHandle, err
	}

	s.appState = Open
	s.setHandle(int(h.Int()))
	hog.From(ctx).Info().Str(`app`, appID).Int(`handle`, s.handle).Msg(`opened app`)
	return t.String(), s.handle, nil
}

// Script returns the load script of the open app.
func (s *Session) Script(ctx context.Context) (string, error) {
	const op = `get script`
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.require(op, guardApp)
	if err != nil {
		return ``, err
	}

	ret, err := s.exchange(ctx, op, protocol.New(protocol.GetScript, s.handle))
	if err != nil {
		return ``, err
	}
	code, err := ret.field(`result.qScript`, gjson.String)
	if err != nil {
		return ``, err
	}
	return code.String(), nil
}

// SetScript replaces the load script of the open app and returns the result echoed by the engine.  The change is not
// persisted until SaveApp is called.
func (s *Session) SetScript(ctx context.Context, code string) (json.RawMessage, error) {
	const op = `set script`
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.require(op, guardApp)
	if err != nil {
		return nil, err
	}

	ret, err := s.exchange(ctx, op, protocol.New(protocol.SetScript, s.handle, code))
	if err != nil {
		return nil, err
	}
	result, err := ret.field(`result`, gjson.JSON)
	if err != nil {
		return nil, err
	}
	hog.From(ctx).Info().Int(`bytes`, len(code)).Msg(`set app script`)
	return json.RawMessage(result.Raw), nil
}

// SaveApp persists changes to the open app.  It returns false without an error if the engine did not confirm the save.
func (s *Session) SaveApp(ctx context.Context) (bool, error) {
	const op = `save app`
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.require(op, guardApp)
	if err != nil {
		return false, err
	}

	ret, err := s.exchange(ctx, op, protocol.New(protocol.DoSave, s.handle))
	if err != nil {
		return false, err
	}
	if !ret.has(`result`) {
		hog.From(ctx).Warn().RawJSON(`response`, ret.raw).Msg(`engine did not confirm app save`)
		return false, nil
	}
	hog.From(ctx).Info().Msg(`saved app`)
	return true, nil
}

// ListApps returns the apps available to the engine.  It only needs a connection, not an open app.
func (s *Session) ListApps(ctx context.Context) ([]Doc, error) {
	const op = `list apps`
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.require(op, guardGlobal)
	if err != nil {
		return nil, err
	}

	ret, err := s.exchange(ctx, op, protocol.New(protocol.GetDocList, protocol.GlobalHandle))
	if err != nil {
		return nil, err
	}
	list, err := ret.field(`result.qDocList`, gjson.JSON)
	if err != nil {
		return nil, err
	}
	if !list.IsArray() {
		return nil, ret.fail(errNotArray)
	}
	var docs []Doc
	err = json.Unmarshal([]byte(list.Raw), &docs)
	if err != nil {
		return nil, ret.fail(err)
	}
	return docs, nil
}
