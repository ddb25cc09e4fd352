// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package site

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	ttemplate "text/template"
)

// Template wraps rendered pages. The page is inserted in place of the
// ${content} placeholder; the rest of the text is kept as is.
type Template struct {
	tpl *ttemplate.Template
}

// contentFunc is replaced on each Execute, it only has to exist at parse time.
func contentFunc() string { return "" }

// LoadTemplate reads the template from path. It returns an error wrapping
// [ErrTemplateNotFound] if the file doesn't exist.
func LoadTemplate(path string) (*Template, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrTemplateNotFound)
	} else if err != nil {
		return nil, err
	}
	return ParseTemplate(path, string(b))
}

// ParseTemplate parses the template text. name is used in error messages.
func ParseTemplate(name, text string) (*Template, error) {
	// We use here text/template, but not html/template because the page is
	// already HTML and must not be escaped.
	tpl, err := ttemplate.New(name).
		Delims("${", "}").
		Funcs(ttemplate.FuncMap{"content": contentFunc}).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", name, ErrTemplateInvalid, err)
	}
	return &Template{tpl: tpl}, nil
}

// Execute writes the template to w with content in place of the placeholder.
func (t *Template) Execute(w io.Writer, content []byte) error {
	tpl, err := t.tpl.Clone()
	if err != nil {
		return err
	}
	tpl.Funcs(ttemplate.FuncMap{
		"content": func() string { return string(content) },
	})
	return tpl.Execute(w, nil)
}
