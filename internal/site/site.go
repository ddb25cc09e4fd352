// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package site turns a directory of Markdown files into a static site.

# Directory Structure

The site root has the following layout:

	index.html     Copied verbatim to the generated site.
	template.html  The template that wraps every page. The rendered page
	               is inserted in place of the ${content} placeholder.
	assets         Contains avatar.png and favicon.ico, which are copied
	               verbatim, and style.less, which is compiled to
	               style.css with lessc.
	*.md           Pages. Each one becomes <name>.html in the generated
	               site. README.md is never rendered.

The generated site is placed into the dist directory by default. It is
removed and created again on every build, so nothing should be kept there.
*/
package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.astrophena.name/mdsite/internal/logger"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"rsc.io/markdown"
)

// Possible fatal errors. Build returns them wrapped, so use errors.Is.
var (
	ErrOutputDir        = errors.New("failed to recreate output directory")
	ErrCompilerNotFound = errors.New("style compiler not found")
	ErrCompileFailed    = errors.New("style compiler failed")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateInvalid  = errors.New("invalid template")
)

var errUndecodable = errors.New("not valid UTF-8")

const (
	assetsDir    = "assets"
	templateFile = "template.html"
	readmeFile   = "README.md"
	styleSrc     = "style.less"
	styleDst     = "style.css"
)

// staticFiles are copied from the site root to the output directory, if they
// exist. Paths are slash-separated and relative on both sides.
var staticFiles = []struct{ src, dst string }{
	{"index.html", "index.html"},
	{"assets/avatar.png", "assets/avatar.png"},
	{"assets/favicon.ico", "assets/favicon.ico"},
}

// Config represents a build configuration.
type Config struct {
	// Src is the site root. If empty, uses the current directory.
	Src string
	// Dst is the directory where to write files. If empty, uses the dist
	// directory inside Src. Everything inside it is removed on each build.
	Dst string
	// Compiler compiles assets/style.less. If nil, lessc from PATH is used.
	Compiler StyleCompiler
	// Minify determines if pages and the stylesheet should be minified.
	Minify bool
	// BaseURL is the base URL of the site. If set, an Atom feed of all pages
	// is written to feed.xml.
	BaseURL *url.URL
	// Title is the title of the feed.
	Title string
	// Author is the name of the feed author.
	Author string
	// Logf is a logger to use for progress and warnings. If nil, log.Printf
	// is used.
	Logf logger.Logf

	feedCreated time.Time // used in tests
}

func (c *Config) setDefaults() {
	if c.Src == "" {
		c.Src = filepath.Join(".")
	}
	if c.Dst == "" {
		c.Dst = filepath.Join(c.Src, "dist")
	}
	if c.Compiler == nil {
		c.Compiler = &Lessc{}
	}
	if c.Title == "" {
		c.Title = "Ilya Mateyko"
	}
	if c.Author == "" {
		c.Author = c.Title
	}
	if c.Logf == nil {
		c.Logf = logger.Logf(log.Printf)
	}
}

// Build builds a site based on the provided [Config].
//
// Errors from recreating the output directory, compiling the stylesheet and
// loading the template are fatal and returned. Missing static files and
// pages that can't be read or written are logged and skipped.
func Build(ctx context.Context, c *Config) error {
	if c == nil {
		c = &Config{}
	}
	c.setDefaults()
	b := newBuildContext(c)

	if err := b.resetOutput(); err != nil {
		return err
	}
	b.copyStatic()
	if err := b.compileStyle(ctx); err != nil {
		return err
	}

	names, err := discoverPages(c.Src)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		c.Logf("no Markdown files found in %s, nothing to render", c.Src)
		c.Logf("build complete: %s", c.Dst)
		return nil
	}

	tpl, err := LoadTemplate(filepath.Join(c.Src, templateFile))
	if err != nil {
		return err
	}
	pages := b.renderPages(tpl, names)

	if c.BaseURL != nil {
		if err := b.buildFeed(pages); err != nil {
			return err
		}
	}

	c.Logf("build complete: rendered %d of %d pages into %s", len(pages), len(names), c.Dst)
	return nil
}

type buildContext struct {
	c   *Config
	md  *markdown.Parser
	min *min
}

func newBuildContext(c *Config) *buildContext {
	return &buildContext{
		c:   c,
		md:  &markdown.Parser{},
		min: newMin(),
	}
}

// resetOutput removes the output directory with everything in it and creates
// it again, together with the assets directory. The site root is never
// removed, so the output directory can't be the site root or contain it.
func (b *buildContext) resetOutput() error {
	src, err := filepath.Abs(b.c.Src)
	if err != nil {
		return err
	}
	dst, err := filepath.Abs(b.c.Dst)
	if err != nil {
		return err
	}
	if within(dst, src) {
		return fmt.Errorf("%s: %w: contains the site root", b.c.Dst, ErrOutputDir)
	}

	if _, err := os.Stat(b.c.Dst); err == nil {
		b.c.Logf("%s exists, removing it", b.c.Dst)
		if err := os.RemoveAll(b.c.Dst); err != nil {
			return fmt.Errorf("%s: %w: %v", b.c.Dst, ErrOutputDir, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(b.c.Dst, assetsDir), 0o755); err != nil {
		return fmt.Errorf("%s: %w: %v", b.c.Dst, ErrOutputDir, err)
	}
	return nil
}

// within reports whether path is dir or lies inside it. Both must be either
// absolute or relative to the same directory.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (b *buildContext) copyStatic() {
	for _, f := range staticFiles {
		src := filepath.Join(b.c.Src, filepath.FromSlash(f.src))
		dst := filepath.Join(b.c.Dst, filepath.FromSlash(f.dst))
		if err := copyFile(src, dst); errors.Is(err, fs.ErrNotExist) {
			b.c.Logf("warning: %s does not exist, skipping", src)
		} else if err != nil {
			b.c.Logf("warning: failed to copy %s: %v", src, err)
		}
	}
}

// copyFile copies src to dst, keeping permission bits and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Chmod(dst, fi.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}

func (b *buildContext) compileStyle(ctx context.Context) error {
	if err := b.c.Compiler.Check(); err != nil {
		return err
	}

	src := filepath.Join(b.c.Src, assetsDir, styleSrc)
	dst := filepath.Join(b.c.Dst, assetsDir, styleDst)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		b.c.Logf("warning: %s does not exist, skipping stylesheet compilation", src)
		return nil
	} else if err != nil {
		return err
	}

	if err := b.c.Compiler.Compile(ctx, src, dst); err != nil {
		return err
	}
	if !b.c.Minify {
		return nil
	}

	buf, err := os.ReadFile(dst)
	if err != nil {
		return err
	}
	minified, err := b.min.Bytes("text/css", buf)
	if err != nil {
		return fmt.Errorf("%s: %w", dst, err)
	}
	return os.WriteFile(dst, minified, 0o644)
}

type min struct {
	m *minify.M
}

func newMin() *min {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepDefaultAttrVals: true,
		KeepEndTags:         true,
	})

	return &min{m: m}
}

func (m *min) Bytes(mediaType string, b []byte) ([]byte, error) {
	return m.m.Bytes(mediaType, b)
}
