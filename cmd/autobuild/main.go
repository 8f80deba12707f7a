package main

import (
	"github.com/alecthomas/kong"

	"github.com/melih/lighthouse-autobuild/cmd/autobuild/commands"
)

var version = "dev"

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("autobuild"),
		kong.Description("Build container images with automatic failure classification and repair."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Bind(cli),
	)
	ctx.FatalIfErrorf(ctx.Run(&commands.Global{}))
}
