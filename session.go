package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/qlik-go/qlik"
	"github.com/swdunlop/qlik-go/qlik/profile"
	"github.com/swdunlop/zugzug-go"
)

// engineSettings are shared by every task that talks to an engine.  Anything set in the environment overrides the
// profile named by QLIK_PROFILE.
var engineSettings = zugzug.Settings{
	{Var: &engineURL, Name: `QLIK_URL`,
		Use: "The websocket url of the engine (default: \"" + qlik.DefaultURL + "\")"},
	{Var: &engineCerts, Name: `QLIK_CERTS`,
		Use: "Path to PEM certificates trusted for wss:// engines"},
	{Var: &engineCredentials, Name: `QLIK_CREDENTIALS`,
		Use: "Credentials sent as the Authorization header"},
	{Var: &engineTimeout, Name: `QLIK_TIMEOUT`,
		Use: "How long to wait for each engine reply, such as \"30s\" (default: no limit)"},
	{Var: &profilePath, Name: `QLIK_PROFILE`,
		Use: "Path to a TOML profile with defaults for the settings above"},
	{Var: &logLevel, Name: `QLIK_LOG_LEVEL`,
		Use: "Log level; \"trace\" logs every engine frame (default: \"info\")"},
}

var (
	engineURL         string
	engineCerts       string
	engineCredentials string
	engineTimeout     string
	profilePath       string
	logLevel          string
)

// engineProfile resolves the engine settings from the profile and environment.
func engineProfile() (profile.Profile, error) {
	p := profile.Profile{URL: qlik.DefaultURL, LogLevel: `info`}
	if profilePath != `` {
		loaded, err := profile.Load(profilePath)
		if err != nil {
			return p, err
		}
		p = p.Merge(*loaded)
	}
	p = p.Merge(profile.Profile{
		URL:         engineURL,
		Certs:       engineCerts,
		Credentials: engineCredentials,
		Timeout:     engineTimeout,
		LogLevel:    logLevel,
	})
	level, err := zerolog.ParseLevel(strings.ToLower(p.LogLevel))
	if err != nil {
		return p, fmt.Errorf(`%w while parsing log level`, err)
	}
	zerolog.SetGlobalLevel(level)
	return p, nil
}

// withSession connects to the engine, runs fn and disconnects, even if fn fails.
func withSession(ctx context.Context, fn func(context.Context, *qlik.Session) error) error {
	p, err := engineProfile()
	if err != nil {
		return err
	}
	options, err := p.Options()
	if err != nil {
		return err
	}
	session, err := qlik.New(p.URL, options...)
	if err != nil {
		return err
	}
	ctx = hog.With(ctx, func(z zerolog.Context) zerolog.Context {
		return z.Str(`engine`, session.URL())
	})
	defer func() {
		err := session.Close()
		if err != nil {
			hog.From(ctx).Debug().Err(err).Msg(`engine connection did not close cleanly`)
		}
		hog.From(ctx).Info().Msg(`disconnected`)
	}()

	err = session.Connect(ctx)
	if err != nil {
		return err
	}
	hog.From(ctx).Info().Msg(`connected`)
	return fn(ctx, session)
}

// checkAppID rejects app IDs that do not name a .qvf app.
func checkAppID(appID string) error {
	switch {
	case appID == ``:
		return fmt.Errorf(`an app id is required`)
	case !strings.HasSuffix(appID, `qvf`):
		return fmt.Errorf(`%q is not a valid app id, it should end with %v`, appID, qlik.AppSuffix)
	}
	return nil
}
