// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/document"
)

const watchDebounce = 100 * time.Millisecond

// docWatcher calls onChange once document files stop changing for the
// debounce window.
type docWatcher struct {
	fs       *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
	onChange func(context.Context)
	done     chan struct{}
}

// watchDocuments starts watching paths. Directories are watched for any
// document file; single files are watched through their directory so
// editors that replace files on save are still seen.
func watchDocuments(ctx context.Context, paths []string, onChange func(context.Context)) (*docWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := &docWatcher{
		fs:       fsw,
		files:    make(map[string]bool),
		debounce: watchDebounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
		dir := abs
		if !info.IsDir() {
			dir = filepath.Dir(abs)
			w.files[abs] = true
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	go w.loop(ctx)
	return w, nil
}

func (w *docWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	if len(w.files) > 0 && w.files[name] {
		return true
	}
	return strings.HasSuffix(name, document.Extension) && !w.fileOnlyDir(name)
}

// fileOnlyDir reports whether name lives in a directory that is watched
// only for specific files.
func (w *docWatcher) fileOnlyDir(name string) bool {
	dir := filepath.Dir(name)
	for f := range w.files {
		if filepath.Dir(f) == dir {
			return true
		}
	}
	return false
}

func (w *docWatcher) loop(ctx context.Context) {
	defer close(w.done)
	logger := ctxlog.FromContext(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			logger.Debug("Document file changed.", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("File watcher error.", "error", err)
		case <-timer.C:
			w.onChange(ctx)
		}
	}
}

// Close stops watching and waits for the loop to exit.
func (w *docWatcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
