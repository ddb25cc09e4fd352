// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package site

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// StyleCompiler compiles a stylesheet source file into CSS.
type StyleCompiler interface {
	// Check returns an error wrapping ErrCompilerNotFound if the compiler
	// can't be run at all.
	Check() error
	// Compile compiles src and writes the result to dst. It returns an error
	// wrapping ErrCompileFailed if the compilation fails.
	Compile(ctx context.Context, src, dst string) error
}

// Lessc is a [StyleCompiler] that runs the LESS compiler found in PATH as
// "lessc <src> <dst>".
type Lessc struct {
	// Name is the executable name or path. If empty, "lessc" is used.
	Name string

	path string // resolved by Check
}

func (l *Lessc) name() string {
	if l.Name == "" {
		return "lessc"
	}
	return l.Name
}

// Check implements [StyleCompiler].
func (l *Lessc) Check() error {
	path, err := exec.LookPath(l.name())
	if err != nil {
		return fmt.Errorf("%s: %w: %v", l.name(), ErrCompilerNotFound, err)
	}
	l.path = path
	return nil
}

// Compile implements [StyleCompiler].
func (l *Lessc) Compile(ctx context.Context, src, dst string) error {
	if l.path == "" {
		if err := l.Check(); err != nil {
			return err
		}
	}

	cmd := exec.CommandContext(ctx, l.path, src, dst)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %v: %s", src, ErrCompileFailed, err, bytes.TrimSpace(out))
	}
	return nil
}
