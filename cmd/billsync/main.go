package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/billsync/internal/app"
	"github.com/dmitrijs2005/billsync/internal/auth"
	"github.com/dmitrijs2005/billsync/internal/buildinfo"
	"github.com/dmitrijs2005/billsync/internal/config"
	"github.com/dmitrijs2005/billsync/internal/flagx"
	"github.com/dmitrijs2005/billsync/internal/logging"
)

const tokenTTL = 30 * 24 * time.Hour

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	// billsync [flags] token <userId> issues a session token for userId.
	if rest := flagx.Positional(os.Args[1:]); len(rest) > 0 {
		if rest[0] != "token" || len(rest) != 2 {
			log.Fatalf("usage: billsync [flags] [token <userId>]")
		}
		token, err := auth.GenerateToken(rest[1], []byte(cfg.AuthSecret), tokenTTL)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println(token)
		return
	}

	buildinfo.PrintBuildData(os.Stdout)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}

