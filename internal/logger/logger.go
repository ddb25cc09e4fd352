// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger defines the logging function type used by the site builder.
package logger

import (
	"io"
	"log"
)

// Logf is a printf-like logging function. Like log.Printf, the format need
// not end in a newline.
type Logf func(format string, args ...any)

// To returns a Logf that writes each message on its own line to w, without
// any prefix or timestamp.
func To(w io.Writer) Logf {
	return log.New(w, "", 0).Printf
}
