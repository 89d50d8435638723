package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetcompiler/cmd/assetcompiler/commands"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	var cli commands.CLI
	parser := kong.Parse(&cli,
		kong.Name("assetcompiler"),
		kong.Description("Compile front-end assets of the packages in a Composer project."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	err := parser.Run(&commands.Global{Logger: slog.Default(), Out: os.Stdout}, &cli)
	stop()
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
