package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/swdunlop/qlik-go/qlik"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "list", Use: "Lists all available apps", Fn: listApps, Settings: engineSettings},
		{Name: "create", Use: "Creates a new app", Fn: createApp, Parser: parser.New(
			parser.String(&appName, "name", "n", "The name of the app, ending with .qvf"),
		), Settings: engineSettings},
		{Name: "global", Use: "Set of global commands", Fn: globalCommands},
	}...)
}

var appName string

func listApps(ctx context.Context) error {
	return withSession(ctx, func(ctx context.Context, session *qlik.Session) error {
		docs, err := session.ListApps(ctx)
		if err != nil {
			return err
		}
		fmt.Println(renderTable([]string{`No.`, `Name`, `ID`, `Last Reload`}, docRows(docs)))
		return nil
	})
}

func docRows(docs []qlik.Doc) [][]string {
	rows := make([][]string, 0, len(docs))
	for i, doc := range docs {
		reload := doc.LastReloadTime
		if t, ok := doc.LastReload(); ok {
			reload = t.Format(`2006-01-02 15:04:05 MST`)
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), doc.Name, doc.ID, reload})
	}
	return rows
}

func createApp(ctx context.Context) error {
	if appName == `` {
		return errors.New(`an app name is required`)
	}
	if err := checkAppID(appName); err != nil {
		return err
	}
	return withSession(ctx, func(ctx context.Context, session *qlik.Session) error {
		id, ok, err := session.CreateApp(ctx, appName)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(`App create command was processed but not successful`)
			return nil
		}
		fmt.Println(id)
		return nil
	})
}

func globalCommands(ctx context.Context) error {
	fmt.Println(`Global commands are not implemented yet`)
	return nil
}
