package main

import (
	"context"
	"fmt"
	"os"

	"github.com/swdunlop/qlik-go/qlik"
	"github.com/swdunlop/qlik-go/qlik/script"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "get-script", Use: "Gets script code from an app", Fn: getScript, Parser: parser.New(
			parser.String(&appID, "app-id", "a", "The app ID (.qvf path for desktop and unique id for server)"),
			parser.String(&outDir, "out", "o", "Existing directory where .qvs files should be written, one per tab"),
		), Settings: engineSettings},
		{Name: "set-script", Use: "Replaces the script code of an app", Fn: setScript, Parser: parser.New(
			parser.String(&appID, "app-id", "a", "The app ID (.qvf path for desktop and unique id for server)"),
			parser.String(&codePath, "code", "c", "A .qvs file or a directory of .qvs files, one per tab"),
		), Settings: engineSettings},
		{Name: "append-script", Use: "Appends script code to the current code of an app", Fn: appendScript, Parser: parser.New(
			parser.String(&appID, "app-id", "a", "The app ID (.qvf path for desktop and unique id for server)"),
			parser.String(&codePath, "code", "c", "A .qvs file or a directory of .qvs files, one per tab"),
		), Settings: engineSettings},
	}...)
}

var (
	appID    string
	outDir   string
	codePath string
)

func getScript(ctx context.Context) error {
	if err := checkAppID(appID); err != nil {
		return err
	}
	if outDir != `` {
		info, err := os.Stat(outDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf(`%q is not a valid path or directory`, outDir)
		}
	}
	return withSession(ctx, func(ctx context.Context, session *qlik.Session) error {
		_, _, err := session.OpenApp(ctx, appID)
		if err != nil {
			return err
		}
		code, err := session.Script(ctx)
		if err != nil {
			return err
		}
		if outDir == `` {
			fmt.Println(`---- Code Start ----`)
			fmt.Println(code)
			fmt.Println(`---- Code End ----`)
			return nil
		}
		tabs := script.Split(code)
		paths, err := script.Write(outDir, tabs)
		if err != nil {
			return err
		}
		rows := make([][]string, len(paths))
		for i, path := range paths {
			rows[i] = []string{tabs[i].Name, path}
		}
		fmt.Println(`get-script Results`)
		fmt.Println(renderTable([]string{`Tab Name`, `File Path`}, rows))
		return nil
	})
}

func setScript(ctx context.Context) error {
	code, err := loadCode()
	if err != nil {
		return err
	}
	return withSession(ctx, func(ctx context.Context, session *qlik.Session) error {
		_, _, err := session.OpenApp(ctx, appID)
		if err != nil {
			return err
		}
		return replaceScript(ctx, session, code)
	})
}

func appendScript(ctx context.Context) error {
	code, err := loadCode()
	if err != nil {
		return err
	}
	return withSession(ctx, func(ctx context.Context, session *qlik.Session) error {
		_, _, err := session.OpenApp(ctx, appID)
		if err != nil {
			return err
		}
		old, err := session.Script(ctx)
		if err != nil {
			return err
		}
		err = replaceScript(ctx, session, old+code)
		if err != nil {
			return err
		}
		fmt.Println(`Code appended`)
		return nil
	})
}

// loadCode validates the app ID and joins the tabs found at codePath into script code.
func loadCode() (string, error) {
	if err := checkAppID(appID); err != nil {
		return ``, err
	}
	if codePath == `` {
		return ``, fmt.Errorf(`a code path is required`)
	}
	tabs, err := script.Load(codePath)
	if err != nil {
		return ``, err
	}
	return script.Join(tabs...), nil
}

// replaceScript sets the script of the open app and saves it.  A save the engine does not confirm is reported but is
// not an error.
func replaceScript(ctx context.Context, session *qlik.Session, code string) error {
	_, err := session.SetScript(ctx, code)
	if err != nil {
		return err
	}
	fmt.Println(`New script code set`)
	saved, err := session.SaveApp(ctx)
	if err != nil {
		return err
	}
	if saved {
		fmt.Println(`App changes saved`)
	} else {
		fmt.Println(`App changes could not be saved`)
	}
	return nil
}
