// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package site

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/base/logger"

	"github.com/fsnotify/fsnotify"
)

var serveReadyHook func() // used in tests, called when Serve started serving the site

// debouncer delays execution of a function until a specified duration has
// passed without any new events.
type debouncer struct {
	d time.Duration
	f func()

	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// newDebouncer creates a new debouncer.
func newDebouncer(d time.Duration, f func()) *debouncer {
	return &debouncer{
		d: d,
		f: f,
	}
}

// Do schedules a function to be executed, pushing back the pending one.
func (d *debouncer) Do() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.t != nil {
		d.t.Stop()
	}
	d.t = time.AfterFunc(d.d, d.f)
}

// Stop cancels the pending execution. Calls to Do after Stop are ignored.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.t != nil {
		d.t.Stop()
	}
}

// Serve builds the site and starts serving it on a provided host:port. The
// site is rebuilt when files in the site root or its assets directory change.
func Serve(ctx context.Context, c *Config, addr string) error {
	if c == nil {
		c = &Config{}
	}
	c.setDefaults()

	var (
		buildMu sync.Mutex
		closed  bool // set when Serve returns, no builds after that
	)
	build := func() error {
		buildMu.Lock()
		defer buildMu.Unlock()
		if closed {
			return nil
		}
		return Build(ctx, c)
	}

	logger.Info(ctx, "performing an initial build")
	if err := build(); err != nil {
		logger.Error(ctx, "initial build failed", slog.Any("err", err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	for _, dir := range []string{
		c.Src,
		filepath.Join(c.Src, assetsDir),
	} {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer l.Close()
	logger.Info(ctx, "listening for HTTP requests", slog.String("addr", "http://"+l.Addr().String()))

	httpSrv := &http.Server{Handler: &staticHandler{fs: os.DirFS(c.Dst)}}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				errCh <- err
			}
		}
	}()

	rebuild := func() {
		logger.Info(ctx, "triggering build")
		if err := build(); err != nil {
			logger.Error(ctx, "failed to rebuild the site", slog.Any("err", err))
		}
	}
	// It's better to have a bit of delay, so that we don't start building
	// the site on each keystroke.
	debouncer := newDebouncer(250*time.Millisecond, rebuild)
	defer func() {
		debouncer.Stop()
		// Wait for a build that is already running.
		buildMu.Lock()
		closed = true
		buildMu.Unlock()
	}()

	go func() {
		logger.Info(ctx, "started watching for new changes")

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !shouldRebuild(c.Dst, event.Name, event.Op) {
					continue
				}
				logger.Info(ctx, "detected change, scheduling build",
					slog.String("name", event.Name),
					slog.Any("op", event.Op),
				)
				debouncer.Do()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// fsnotify blocks until errors are received, so they must be
				// read even if nothing can be done about them.
				logger.Error(ctx, "watcher error", slog.Any("err", err))
			case <-ctx.Done():
				return
			}
		}
	}()

	if serveReadyHook != nil {
		serveReadyHook()
	}

	select {
	case <-ctx.Done():
		logger.Info(ctx, "gracefully shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return httpSrv.Shutdown(shutdownCtx)
}

// Mostly copied from
// https://github.com/brandur/modulir/blob/1ff912fdc45a79cb4d8d9f199d213ae9c3598cbd/watch.go#L201.
func shouldRebuild(dst, name string, op fsnotify.Op) bool {
	// Changes in the output directory are made by the build itself.
	if within(dst, name) {
		return false
	}

	base := filepath.Base(name)

	// Mac OS' worst mistake.
	if base == ".DS_Store" {
		return false
	}

	// Vim creates this temporary file to see whether it can write into a target
	// directory. It screws up our watching algorithm, so ignore it.
	if base == "4913" {
		return false
	}

	// A special case, but ignore creates on files that look like Vim backups.
	if strings.HasSuffix(base, "~") {
		return false
	}

	// Chmod doesn't affect build output and rename produces a following
	// create event as well.
	return op&(fsnotify.Create|fsnotify.Remove|fsnotify.Write) != 0
}

// staticHandler serves the generated site. Pages are written flat as
// <stem>.html, so /hello serves hello.html. A page made from 404.md becomes
// 404.html and is served for missing paths.
type staticHandler struct {
	fs fs.FS
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if p == "/" {
		p += "/index.html"
	}
	p = strings.TrimPrefix(path.Clean(p), "/")

	// Extensionless links to pages: /foo serves foo.html, if it exists.
	if _, err := fs.Stat(h.fs, p+".html"); err == nil {
		p += ".html"
	}

	d, err := fs.Stat(h.fs, p)
	if errors.Is(err, fs.ErrNotExist) {
		h.serveNotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d.IsDir() {
		h.serveNotFound(w, r)
		return
	}

	b, err := fs.ReadFile(h.fs, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.ServeContent(w, r, d.Name(), d.ModTime(), bytes.NewReader(b))
}

// serveNotFound serves 404.html with the 404 status, or a plain error page if
// the site has no 404.md.
func (h *staticHandler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	f, err := h.fs.Open("404.html")
	if errors.Is(err, fs.ErrNotExist) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	w.WriteHeader(http.StatusNotFound)
	io.Copy(w, f)
}
