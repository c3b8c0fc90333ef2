package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/subfrost/walletd/app/walletd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := walletd.Initialize(ctx)
	if err != nil {
		panic(err)
	}

	// Immediate poll before the scheduler takes over
	walletd.StartCron(ctx, app)

	if err := walletd.NewServer(app); err != nil {
		app.Logger.Fatal("Unable to build server", zap.Error(err))
	}

	app.Start(ctx)
}
