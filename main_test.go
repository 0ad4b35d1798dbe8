package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdunlop/qlik-go/qlik"
	"nhooyr.io/websocket"
)

// engine answers each request with the reply registered for its method.
type engine struct {
	mu      sync.Mutex
	replies map[string]string
	methods []string
	params  [][]string
}

func startEngine(t *testing.T, replies map[string]string) *engine {
	t.Helper()
	e := &engine{replies: replies}
	srv := httptest.NewServer(http.HandlerFunc(e.serve))
	t.Cleanup(srv.Close)

	old := engineURL
	engineURL = `ws` + strings.TrimPrefix(srv.URL, `http`) + `/app/`
	t.Cleanup(func() { engineURL = old })
	return e
}

func (e *engine) serve(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = c.CloseNow() }()
	ctx := r.Context()
	hello := `{"jsonrpc":"2.0","method":"OnConnected","params":{"qSessionState":"SESSION_CREATED"}}`
	if c.Write(ctx, websocket.MessageText, []byte(hello)) != nil {
		return
	}
	for {
		_, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		var req struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
		}
		_ = json.Unmarshal(msg, &req)
		e.mu.Lock()
		e.methods = append(e.methods, req.Method)
		e.params = append(e.params, req.Params)
		reply, ok := e.replies[req.Method]
		e.mu.Unlock()
		if !ok {
			reply = `{}`
		}
		if c.Write(ctx, websocket.MessageText, []byte(reply)) != nil {
			return
		}
	}
}

func (e *engine) calls() ([]string, [][]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.methods...), append([][]string(nil), e.params...)
}

func setFlag(t *testing.T, v *string, value string) {
	old := *v
	*v = value
	t.Cleanup(func() { *v = old })
}

func TestCheckAppID(t *testing.T) {
	assert.NoError(t, checkAppID(`C:\Apps\Sales.qvf`))
	assert.Error(t, checkAppID(``))
	assert.Error(t, checkAppID(`Sales`))
}

func TestDocRows(t *testing.T) {
	rows := docRows([]qlik.Doc{
		{Name: `Sales.qvf`, ID: `1`, LastReloadTime: `2021-03-04T10:11:12.345Z`},
		{Name: `Empty.qvf`, ID: `2`},
		{Name: `Odd.qvf`, ID: `3`, LastReloadTime: `unknown`},
	})
	assert.Equal(t, [][]string{
		{`1`, `Sales.qvf`, `1`, `2021-03-04 10:11:12 UTC`},
		{`2`, `Empty.qvf`, `2`, ``},
		{`3`, `Odd.qvf`, `3`, `unknown`},
	}, rows)
}

func TestEngineProfilePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), `qlik.toml`)
	require.NoError(t, os.WriteFile(path, []byte("url = \"ws://profile:4848/app/\"\ntimeout = \"10s\"\n"), 0o600))
	setFlag(t, &profilePath, path)
	setFlag(t, &engineURL, ``)
	setFlag(t, &logLevel, `warn`)

	p, err := engineProfile()
	require.NoError(t, err)
	assert.Equal(t, `ws://profile:4848/app/`, p.URL)
	assert.Equal(t, `10s`, p.Timeout)

	setFlag(t, &engineURL, `ws://env:4848/app/`)
	p, err = engineProfile()
	require.NoError(t, err)
	assert.Equal(t, `ws://env:4848/app/`, p.URL)

	setFlag(t, &profilePath, ``)
	setFlag(t, &engineURL, ``)
	p, err = engineProfile()
	require.NoError(t, err)
	assert.Equal(t, qlik.DefaultURL, p.URL)

	setFlag(t, &logLevel, `loud`)
	_, err = engineProfile()
	assert.Error(t, err)
}

func TestGetScriptWritesTabs(t *testing.T) {
	e := startEngine(t, map[string]string{
		`OpenDoc`:   `{"result":{"qReturn":{"qHandle":1,"qType":"Doc"}}}`,
		`GetScript`: `{"result":{"qScript":"///$tab Main\r\nSET x=1;\r\n///$tab Load\r\nLOAD 1 AutoGenerate 1;"}}`,
	})
	dir := t.TempDir()
	setFlag(t, &appID, `Sales.qvf`)
	setFlag(t, &outDir, dir)

	require.NoError(t, getScript(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, `002_Load.qvs`))
	require.NoError(t, err)
	assert.Equal(t, `LOAD 1 AutoGenerate 1;`, string(data))
	methods, _ := e.calls()
	assert.Equal(t, []string{`OpenDoc`, `GetScript`}, methods)
}

func TestAppendScript(t *testing.T) {
	e := startEngine(t, map[string]string{
		`OpenDoc`:   `{"result":{"qReturn":{"qHandle":1,"qType":"Doc"}}}`,
		`GetScript`: `{"result":{"qScript":"SET x=1;"}}`,
		`SetScript`: `{"result":{}}`,
	})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, `extra.qvs`), []byte(`SET y=2;`), 0o644))
	setFlag(t, &appID, `Sales.qvf`)
	setFlag(t, &codePath, dir)

	require.NoError(t, appendScript(context.Background()))

	methods, params := e.calls()
	assert.Equal(t, []string{`OpenDoc`, `GetScript`, `SetScript`, `DoSave`}, methods)
	assert.Equal(t, []string{"SET x=1;\r\n\r\n///$tab extra\r\nSET y=2;"}, params[2])
}

func TestSetScriptFailsWithoutOpenApp(t *testing.T) {
	e := startEngine(t, map[string]string{
		`OpenDoc`: `{"error":{"code":1002,"message":"App not found"}}`,
	})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, `main.qvs`), []byte(`SET x=1;`), 0o644))
	setFlag(t, &appID, `Missing.qvf`)
	setFlag(t, &codePath, dir)

	err := setScript(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, qlik.ErrProtocol), `%v`, err)
	methods, _ := e.calls()
	assert.Equal(t, []string{`OpenDoc`}, methods)
}

func TestCreateAppRequiresName(t *testing.T) {
	setFlag(t, &appName, ``)
	assert.Error(t, createApp(context.Background()))
	setFlag(t, &appName, `Sales`)
	assert.Error(t, createApp(context.Background()))
}

func TestWatchOptions(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, `main.qvs`)
	require.NoError(t, os.WriteFile(file, []byte(`SET x=1;`), 0o644))
	notes := filepath.Join(dir, `notes.txt`)
	require.NoError(t, os.WriteFile(notes, []byte(`x`), 0o644))

	options, err := watchOptions(dir)
	require.NoError(t, err)
	assert.Len(t, options, 2)
	options, err = watchOptions(file)
	require.NoError(t, err)
	assert.Len(t, options, 1)
	_, err = watchOptions(notes)
	assert.Error(t, err)
	_, err = watchOptions(filepath.Join(dir, `missing`))
	assert.Error(t, err)
}

func TestWatchScript(t *testing.T) {
	for _, test := range []struct {
		name string
		path func(dir string) string
	}{
		{`directory`, func(dir string) string { return dir }},
		{`file`, func(dir string) string { return filepath.Join(dir, `main.qvs`) }},
	} {
		t.Run(test.name, func(t *testing.T) {
			e := startEngine(t, map[string]string{
				`OpenDoc`:   `{"result":{"qReturn":{"qHandle":1,"qType":"Doc"}}}`,
				`SetScript`: `{"result":{}}`,
				`DoSave`:    `{"result":{}}`,
			})
			dir := t.TempDir()
			tab := filepath.Join(dir, `main.qvs`)
			require.NoError(t, os.WriteFile(tab, []byte(`SET x=1;`), 0o644))
			setFlag(t, &appID, `Sales.qvf`)
			setFlag(t, &codePath, test.path(dir))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- watchScript(ctx) }()

			// edits made before the watcher starts are missed, so keep saving until one lands.
			require.Eventually(t, func() bool {
				methods, _ := e.calls()
				if slices.Contains(methods, `DoSave`) {
					return true
				}
				if !slices.Contains(methods, `SetScript`) {
					_ = os.WriteFile(tab, []byte(`SET y=2;`), 0o644)
				}
				return false
			}, 10*time.Second, 500*time.Millisecond)

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal(`watch-script did not stop`)
			}

			methods, params := e.calls()
			assert.Equal(t, `OpenDoc`, methods[0])
			i := slices.Index(methods, `SetScript`)
			require.GreaterOrEqual(t, i, 0)
			assert.Equal(t, []string{"\r\n\r\n///$tab main\r\nSET y=2;"}, params[i])
		})
	}
}
