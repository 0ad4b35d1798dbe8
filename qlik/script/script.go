// Package script converts between an app's load script and the tabs it is divided into.  A tab begins with a marker
// line of the form "///$tab Name"; on disk, each tab is kept in its own .qvs file.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Ext is the file extension of script files.
const Ext = `.qvs`

// A Tab is a named section of a load script.
type Tab struct {
	Name string
	Code string
}

var (
	tabName   = regexp.MustCompile(`[/]{3}\$tab\s*([\p{L}\p{N}_ ]+)`)
	tabMarker = regexp.MustCompile(`[/]{3}\$tab\s*[\p{L}\p{N}_ ]+`)
	qvsFiles  = glob.MustCompile(`*` + Ext)
)

// Header returns the marker that introduces a tab with the given name.
func Header(name string) string {
	return "\r\n\r\n///$tab " + name + "\r\n"
}

// Join concatenates tabs into a load script, each preceded by its header.
func Join(tabs ...Tab) string {
	var b strings.Builder
	for _, tab := range tabs {
		b.WriteString(Header(tab.Name))
		b.WriteString(tab.Code)
	}
	return b.String()
}

// Split divides a load script into its tabs.  Text before the first tab marker is not part of any tab and is
// discarded.  Leading whitespace of each tab's code is trimmed.
func Split(code string) []Tab {
	names := tabName.FindAllStringSubmatch(code, -1)
	bodies := tabMarker.Split(code, -1)[1:]
	tabs := make([]Tab, 0, len(names))
	for i, name := range names {
		if i >= len(bodies) {
			break
		}
		tabs = append(tabs, Tab{
			Name: strings.TrimSpace(name[1]),
			Code: strings.TrimLeft(bodies[i], " \t\r\n"),
		})
	}
	return tabs
}

// IsScriptFile reports whether name has the script file extension.
func IsScriptFile(name string) bool {
	return qvsFiles.Match(filepath.Base(name))
}

// Load reads tabs from path, which may be a single .qvs file or a directory containing .qvs files.  Each file becomes
// a tab named after the file without its extension; files in a directory are taken in name order.
func Load(path string) ([]Tab, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !IsScriptFile(path) {
			return nil, fmt.Errorf(`%q is not a %v file`, path, Ext)
		}
		tab, err := loadTab(path)
		if err != nil {
			return nil, err
		}
		return []Tab{tab}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var tabs []Tab
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsScriptFile(entry.Name()) {
			continue
		}
		tab, err := loadTab(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		tabs = append(tabs, tab)
	}
	if len(tabs) == 0 {
		return nil, fmt.Errorf(`%q does not contain any %v files`, path, Ext)
	}
	return tabs, nil
}

func loadTab(path string) (Tab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tab{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Tab{Name: name, Code: string(data)}, nil
}

// Write stores each tab in dir as "NNN_Name.qvs", numbered from 001 in order, and returns the absolute paths of the
// files written.  The directory must already exist.
func Write(dir string, tabs []Tab) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf(`%q is not a directory`, dir)
	}
	paths := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		path, err := filepath.Abs(filepath.Join(dir, fmt.Sprintf(`%03d_%s%s`, i+1, tab.Name, Ext)))
		if err != nil {
			return paths, err
		}
		err = os.WriteFile(path, []byte(tab.Code), 0o644)
		if err != nil {
			return paths, fmt.Errorf(`%w while writing tab %q`, err, tab.Name)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
