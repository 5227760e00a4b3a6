package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/satswap/swapd"
	"github.com/satswap/swapd/build"
	"github.com/satswap/swapd/config"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "swapd"
	app.Version = build.GetTag() + " commit=" + build.GetRevision()
	app.Usage = "Coordinator for peer-to-peer swaps between Lightning and on-chain bitcoin"
	app.Action = func(cliCtx *cli.Context) error {
		return run()
	}
	app.Commands = []cli.Command{
		migrateCommand,
		dealsCommand,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return swapd.Main(ctx, cfg)
}
