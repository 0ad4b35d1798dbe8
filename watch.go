package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/qlik-go/qlik"
	"github.com/swdunlop/qlik-go/qlik/script"
	"github.com/swdunlop/qlik-go/qlik/watcher"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "watch-script", Use: "Replaces the script code of an app whenever its .qvs files change", Fn: watchScript, Parser: parser.New(
			parser.String(&appID, "app-id", "a", "The app ID (.qvf path for desktop and unique id for server)"),
			parser.String(&codePath, "code", "c", "A .qvs file or a directory of .qvs files, one per tab"),
		), Settings: engineSettings},
	}...)
}

func watchScript(ctx context.Context) error {
	if _, err := loadCode(); err != nil {
		return err
	}
	options, err := watchOptions(codePath)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	return withSession(ctx, func(ctx context.Context, session *qlik.Session) error {
		_, _, err := session.OpenApp(ctx, appID)
		if err != nil {
			return err
		}
		wr, err := watcher.Start(ctx, options...)
		if err != nil {
			return err
		}
		hog.From(ctx).Info().Str(`code`, codePath).Msg(`watching for script changes, interrupt to stop`)
		for batch := range wr.Changes() {
			hog.From(ctx).Info().Str(`files`, strings.Join(batch, `, `)).Msg(`script changed`)
			code, err := loadCode()
			if err != nil {
				// a tab may be mid-rename or deleted; wait for the next change.
				hog.From(ctx).Warn().Err(err).Msg(`could not load script`)
				continue
			}
			err = replaceScript(ctx, session, code)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// watchOptions watches a whole directory of tabs, or just the one file if path is a file.
func watchOptions(path string) ([]watcher.Option, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return []watcher.Option{watcher.Directory(path), watcher.Include(`*` + script.Ext)}, nil
	}
	if !script.IsScriptFile(path) {
		return nil, fmt.Errorf(`%q is not a %v file`, path, script.Ext)
	}
	return []watcher.Option{watcher.File(path)}, nil
}
