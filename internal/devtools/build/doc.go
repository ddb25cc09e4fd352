// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Build builds the site.

# Usage

	$ go tool build

Run it from the site root. The generated site is written to the dist
directory, which is removed and created again on every run. The LESS
compiler (lessc) must be available in PATH.

# Environment

	MDSITE_MINIFY    Set to 1 to minify pages and the stylesheet.
	MDSITE_BASE_URL  Base URL of the site. If set, feed.xml is generated.
	MDSITE_TITLE     Feed title.
	MDSITE_AUTHOR    Feed author.
	MDSITE_LESSC     Name or path of the LESS compiler.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
