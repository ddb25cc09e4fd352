// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestServe(t *testing.T) {
	// Find a free port for us.
	port, err := getFreePort()
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	addr := fmt.Sprintf("localhost:%d", port)

	src := newSite(t)

	var wg sync.WaitGroup

	ready := make(chan struct{})
	serveReadyHook = func() {
		ready <- struct{}{}
	}
	t.Cleanup(func() { serveReadyHook = nil })
	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := Serve(ctx, &Config{
			Src:      src,
			Compiler: &fakeCompiler{},
			// Rebuilds happen on another goroutine and may outlive the test.
			Logf: func(string, ...any) {},
		}, addr); err != nil {
			errCh <- err
		}
	}()

	// Wait until the server is ready.
	select {
	case err := <-errCh:
		t.Fatalf("Test server crashed during startup or runtime: %v", err)
	case <-ready:
	}

	// Make some HTTP requests.
	urls := []struct {
		url        string
		wantStatus int
		wantBody   string
	}{
		{url: "/", wantStatus: http.StatusOK, wantBody: "<title>Home</title>"},
		{url: "/hello", wantStatus: http.StatusOK, wantBody: "<h1>Hi</h1>"},
		{url: "/hello.html", wantStatus: http.StatusOK, wantBody: "<h1>Hi</h1>"},
		{url: "/assets/style.css", wantStatus: http.StatusOK, wantBody: "color: red"},
		{url: "/README", wantStatus: http.StatusNotFound},
		{url: "/does-not-exist", wantStatus: http.StatusNotFound},
		{url: "/assets/", wantStatus: http.StatusNotFound},
	}

	for _, u := range urls {
		body, status := get(t, "http://"+addr+u.url)
		if status != u.wantStatus {
			t.Fatalf("GET %s: want status code %d, got %d", u.url, u.wantStatus, status)
		}
		if !strings.Contains(body, u.wantBody) {
			t.Fatalf("GET %s: body %q doesn't contain %q", u.url, body, u.wantBody)
		}
	}

	// Add a page and wait for it to appear.
	write(t, src, "new.md", "# New page\n")
	deadline := time.Now().Add(10 * time.Second)
	for {
		body, status := get(t, "http://"+addr+"/new")
		if status == http.StatusOK && strings.Contains(body, "<h1>New page</h1>") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("new page didn't appear after rebuild, last status %d", status)
		}
		time.Sleep(100 * time.Millisecond)
	}

	// A change right before shutdown must not be built after Serve returns.
	write(t, src, "late.md", "# Too late\n")

	// Try to gracefully shutdown the server.
	cancel()
	// Wait until the server shuts down.
	wg.Wait()
	// See if the server failed to shutdown.
	select {
	case err := <-errCh:
		t.Fatalf("Test server crashed during shutdown: %v", err)
	default:
	}

	// Longer than the debounce delay.
	time.Sleep(500 * time.Millisecond)
	if _, err := os.Stat(filepath.Join(src, "dist", "late.html")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("site was rebuilt after Serve returned: %v", err)
	}
}

func get(t *testing.T, url string) (body string, status int) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b), res.StatusCode
}

// getFreePort asks the kernel for a free open port that is ready to use.
// Copied from
// https://github.com/phayes/freeport/blob/74d24b5ae9f58fbe4057614465b11352f71cdbea/freeport.go.
func getFreePort() (port int, err error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func TestShouldRebuild(t *testing.T) {
	dst := filepath.Join("site", "dist")
	cases := map[string]struct {
		path string
		op   fsnotify.Op
		want bool
	}{
		"macOS garbage":      {".DS_Store", fsnotify.Create, false},
		"vim temp file":      {"lololol/4913", fsnotify.Write, false},
		"vim backup file":    {"site/hello.md~", fsnotify.Create, false},
		"file creation":      {"site/hello.md", fsnotify.Create, true},
		"file removal":       {"site/hello.md", fsnotify.Remove, true},
		"file write":         {"site/hello.md", fsnotify.Write, true},
		"asset write":        {"site/assets/style.less", fsnotify.Write, true},
		"ignore chmod":       {"site/hello.md", fsnotify.Chmod, false},
		"ignore rename":      {"site/hello.md", fsnotify.Rename, false},
		"ignore output dir":  {"site/dist", fsnotify.Remove, false},
		"ignore output file": {"site/dist/hello.html", fsnotify.Write, false},
		"similar name is ok": {"site/distant.md", fsnotify.Write, true},
		"site root itself":   {"site", fsnotify.Write, true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := shouldRebuild(dst, filepath.FromSlash(tc.path), tc.op)
			if got != tc.want {
				t.Fatalf("shouldRebuild(%q, %q, %+v): want %v, got %v", dst, tc.path, tc.op, tc.want, got)
			}
		})
	}
}

func TestDebouncer(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	done := make(chan struct{}, 10)
	d := newDebouncer(50*time.Millisecond, func() {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
	})

	for range 5 {
		d.Do()
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("debounced function was never called")
	}
	// Give a chance for extra calls to happen, if any.
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("want 1 call, got %d", calls)
	}
}

func TestDebouncerStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	d := newDebouncer(50*time.Millisecond, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	d.Do()
	d.Stop()
	d.Do()

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("want no calls after Stop, got %d", calls)
	}
}

func TestStaticHandler(t *testing.T) {
	src := newSite(t)
	write(t, src, "404.md", "# Not here\n")
	c, _, _ := newConfig(t, src)
	if err := Build(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	h := &staticHandler{fs: os.DirFS(c.Dst)}

	cases := map[string]struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		"index":             {path: "/", wantStatus: http.StatusOK, wantBody: "<title>Home</title>"},
		"page by stem":      {path: "/hello", wantStatus: http.StatusOK, wantBody: "<h1>Hi</h1>"},
		"page by file name": {path: "/hello.html", wantStatus: http.StatusOK, wantBody: "<h1>Hi</h1>"},
		"unclean path":      {path: "/assets/../about", wantStatus: http.StatusOK, wantBody: "<h1>About me</h1>"},
		"stylesheet":        {path: "/assets/style.css", wantStatus: http.StatusOK, wantBody: "color: red"},
		"missing page":      {path: "/missing", wantStatus: http.StatusNotFound, wantBody: "<h1>Not here</h1>"},
		"nested source":     {path: "/notes/nested", wantStatus: http.StatusNotFound, wantBody: "<h1>Not here</h1>"},
		"directory":         {path: "/assets/", wantStatus: http.StatusNotFound, wantBody: "<h1>Not here</h1>"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if w.Code != tc.wantStatus {
				t.Fatalf("GET %s: want status code %d, got %d", tc.path, tc.wantStatus, w.Code)
			}
			if body := w.Body.String(); !strings.Contains(body, tc.wantBody) {
				t.Fatalf("GET %s: body %q doesn't contain %q", tc.path, body, tc.wantBody)
			}
		})
	}
}

func TestStaticHandlerNotFoundWithoutPage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("home"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: &staticHandler{fs: os.DirFS(dir)}}
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	body, status := get(t, "http://"+l.Addr().String()+"/missing")
	if status != http.StatusNotFound {
		t.Fatalf("want %d, got %d", http.StatusNotFound, status)
	}
	if !strings.Contains(body, "404 page not found") {
		t.Fatalf("unexpected body %q", body)
	}
}
