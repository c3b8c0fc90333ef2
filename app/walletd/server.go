package walletd

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/subfrost/walletd/app/walletd/controller"
	"github.com/subfrost/walletd/app/walletd/types"
	"github.com/subfrost/walletd/pkg/utils"
)

// NewServer builds the HTTP server for app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3010")

	app.Server = &http.Server{Addr: addr, Handler: controller.WithCORS(router)}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
