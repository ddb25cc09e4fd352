// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package site

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"rsc.io/markdown"
)

// Page represents a rendered page.
type Page struct {
	Name    string    // source file name, e.g. hello.md
	Title   string    // text of the first <h1>, or the name without extension
	Updated time.Time // modification time of the source file

	contents []byte // page contents as HTML, without the template
}

// DstName returns the file name the page is written to.
func (p *Page) DstName() string {
	return strings.TrimSuffix(p.Name, filepath.Ext(p.Name)) + ".html"
}

// discoverPages returns the names of Markdown files in dir, except README.md
// and hidden files.
// Subdirectories are not searched.
func discoverPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		// Editors and other tools leave hidden files around.
		if name == readmeFile || strings.HasPrefix(name, ".") {
			continue
		}
		if ok, _ := filepath.Match("*.md", name); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (b *buildContext) renderPages(tpl *Template, names []string) []*Page {
	var pages []*Page
	for _, name := range names {
		p, err := b.renderPage(tpl, name)
		if err != nil {
			b.c.Logf("warning: skipping %s: %v", name, err)
			continue
		}
		pages = append(pages, p)
	}
	return pages
}

func (b *buildContext) renderPage(tpl *Template, name string) (*Page, error) {
	p := &Page{Name: name}
	if err := p.parse(b, filepath.Join(b.c.Src, name)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p.contents); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	out := buf.Bytes()
	if b.c.Minify {
		minified, err := b.min.Bytes("text/html", out)
		if err != nil {
			return nil, err
		}
		out = minified
	}

	if err := os.WriteFile(filepath.Join(b.c.Dst, p.DstName()), out, 0o644); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Page) parse(b *buildContext, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	src, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if !utf8.Valid(src) {
		return fmt.Errorf("%s: %w", path, errUndecodable)
	}
	p.Updated = fi.ModTime().UTC()

	doc := b.md.Parse(string(src))
	p.contents = []byte(markdown.ToHTML(doc))
	p.Title = pageTitle(p.contents)
	if p.Title == "" {
		p.Title = strings.TrimSuffix(p.Name, filepath.Ext(p.Name))
	}
	return nil
}

// pageTitle returns the text of the first <h1> in contents.
func pageTitle(contents []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(contents))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}
