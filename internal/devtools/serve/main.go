// © 2022 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"

	"go.astrophena.name/base/cli"
	"go.astrophena.name/mdsite/internal/devtools"
	"go.astrophena.name/mdsite/internal/site"
)

const addr = "localhost:3000"

func main() { cli.Main(cli.AppFunc(run)) }

func run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) != 0 {
		return cli.ErrInvalidArgs
	}

	c, err := devtools.Config(devtools.SiteRoot(), env.Getenv)
	if err != nil {
		return err
	}
	return site.Serve(ctx, c, addr)
}
