// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Serve serves the site for local development.

# Usage:

	$ go tool serve

Serve performs an initial build into the dist directory of the site root
and serves it on http://localhost:3000. It then watches the site root and
its assets directory for changes and automatically rebuilds the site.

It reads the same environment variables as build.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/base/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
