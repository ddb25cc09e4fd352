// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package devtools contains common functionality for development tools.
package devtools

import (
	"fmt"
	"net/url"
	"os"

	"go.astrophena.name/base/unwrap"
	"go.astrophena.name/mdsite/internal/logger"
	"go.astrophena.name/mdsite/internal/site"
)

// SiteRoot returns the site root, which is always the current working
// directory.
func SiteRoot() string {
	return unwrap.Value(os.Getwd())
}

// Config returns the build configuration for the site in dir. Optional
// settings are read using getenv:
//
//	MDSITE_MINIFY    Set to 1 or true to minify pages and the stylesheet.
//	MDSITE_BASE_URL  Base URL of the site. Enables the Atom feed.
//	MDSITE_TITLE     Feed title.
//	MDSITE_AUTHOR    Feed author.
//	MDSITE_LESSC     Name or path of the LESS compiler, lessc by default.
func Config(dir string, getenv func(string) string) (*site.Config, error) {
	c := &site.Config{
		Src:      dir,
		Compiler: &site.Lessc{Name: getenv("MDSITE_LESSC")},
		Title:    getenv("MDSITE_TITLE"),
		Author:   getenv("MDSITE_AUTHOR"),
		Logf:     logger.To(os.Stdout),
	}

	switch v := getenv("MDSITE_MINIFY"); v {
	case "", "0", "false":
	case "1", "true":
		c.Minify = true
	default:
		return nil, fmt.Errorf("MDSITE_MINIFY: invalid value %q", v)
	}

	if v := getenv("MDSITE_BASE_URL"); v != "" {
		u, err := url.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("MDSITE_BASE_URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("MDSITE_BASE_URL: %q is not an absolute URL", v)
		}
		c.BaseURL = u
	}

	return c, nil
}
