package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/cli"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/config"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	code := app.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)

}
