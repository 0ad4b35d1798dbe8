// Package watcher reports batches of changed files under a set of directories, used to push script edits to an open
// app as they are saved.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/swdunlop/html-go/hog"
)

// Start a watcher with the provided options.  The watcher stops and closes its Changes channel when ctx is done.
func Start(ctx context.Context, options ...Option) (*Watcher, error) {
	wr := &Watcher{settle: 250 * time.Millisecond}
	for _, option := range options {
		err := option(wr)
		if err != nil {
			return nil, err
		}
	}
	err := wr.start(ctx)
	if err != nil {
		return nil, err
	}
	return wr, nil
}

// An Option is a function that can manipulate a watcher during construction
type Option func(*Watcher) error

// Include specifies one or more file patterns to include in the watch.
// If no patterns are specified, all files not starting with a dot are included.
func Include(patterns ...string) Option {
	return func(wr *Watcher) (err error) {
		wr.includes, err = appendPatterns(wr.includes, patterns...)
		return
	}
}

// Exclude specifies one or more file patterns to exclude from the watch.
// If no patterns are specified, only files starting with a dot are excluded.
// If a file matches both an include and an exclude pattern, it is excluded.
func Exclude(patterns ...string) Option {
	return func(wr *Watcher) (err error) {
		wr.excludes, err = appendPatterns(wr.excludes, patterns...)
		return
	}
}

// Directory specifies one or more directories to watch recursively.
// If no directories are specified, the current working directory is watched.
func Directory(paths ...string) Option {
	return func(wr *Watcher) error {
		wr.directories = append(wr.directories, paths...)
		return nil
	}
}

// File watches the directory containing path, reporting only changes to that file.  The name is matched literally,
// even if it contains glob syntax.
func File(path string) Option {
	return func(wr *Watcher) error {
		wr.directories = append(wr.directories, filepath.Dir(path))
		return Include(glob.QuoteMeta(filepath.Base(path)))(wr)
	}
}

// Settle specifies how long the watcher waits after the last change before reporting a batch.  Editors often write a
// file several times when saving it.
func Settle(d time.Duration) Option {
	return func(wr *Watcher) error {
		if d <= 0 {
			return fmt.Errorf(`settle duration must be positive, got %v`, d)
		}
		wr.settle = d
		return nil
	}
}

// patterns match against the base name of a file.
func appendPatterns(seq []glob.Glob, patterns ...string) ([]glob.Glob, error) {
	for _, pattern := range patterns {
		rx, err := glob.Compile(pattern, filepath.Separator)
		if err != nil {
			return nil, fmt.Errorf(`%w in %q`, err, pattern)
		}
		seq = append(seq, rx)
	}
	return seq, nil
}

// A Watcher reports changed files.
type Watcher struct {
	includes    []glob.Glob
	excludes    []glob.Glob
	directories []string
	settle      time.Duration

	fsnotify *fsnotify.Watcher
	changes  chan []string // sorted paths changed since the last batch
}

// Changes returns the channel of changed file batches.  It is closed when the watcher stops.
func (wr *Watcher) Changes() <-chan []string {
	return wr.changes
}

func (wr *Watcher) start(ctx context.Context) (err error) {
	wr.fsnotify, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if len(wr.directories) == 0 {
		wr.directories = []string{`.`}
	}
	if len(wr.excludes) == 0 {
		wr.excludes = []glob.Glob{glob.MustCompile(`.*`, filepath.Separator)}
	}
	for _, dir := range wr.directories {
		err := filepath.WalkDir(dir, func(path string, info fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return wr.fsnotify.Add(path)
			}
			return nil
		})
		if err != nil {
			wr.fsnotify.Close()
			return err
		}
	}
	wr.changes = make(chan []string)
	go wr.process(ctx)
	return nil
}

func (wr *Watcher) process(ctx context.Context) {
	defer close(wr.changes)
	defer wr.fsnotify.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(wr.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-wr.fsnotify.Errors:
			if !ok {
				return
			}
			hog.From(ctx).Warn().Err(err).Msg(`file watch error`)
		case event, ok := <-wr.fsnotify.Events:
			if !ok {
				return
			}
			if wr.processNotification(event) {
				pending[event.Name] = struct{}{}
				timer.Reset(wr.settle)
			}
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for path := range pending {
				batch = append(batch, path)
			}
			sort.Strings(batch)
			select {
			case wr.changes <- batch:
				pending = make(map[string]struct{})
			case <-ctx.Done():
				return
			}
		}
	}
}

// processNotification reports whether event changed a file the watcher should report.
func (wr *Watcher) processNotification(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err != nil {
			return false
		}
		if info.IsDir() {
			_ = wr.fsnotify.Add(event.Name)
			return false // creating a new directory should not issue an alert, but we should watch it
		}
	}

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
		return wr.shouldInclude(event.Name)
	case event.Has(fsnotify.Remove):
		_ = wr.fsnotify.Remove(event.Name)
		return wr.shouldInclude(event.Name)
	}
	return false
}

func (wr *Watcher) shouldInclude(path string) bool {
	name := filepath.Base(path)
	included := len(wr.includes) == 0
	for _, rx := range wr.includes {
		if rx.Match(name) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, rx := range wr.excludes {
		if rx.Match(name) {
			return false
		}
	}
	return true
}
