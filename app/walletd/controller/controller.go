package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/subfrost/walletd/app/walletd/types"
	"github.com/subfrost/walletd/pkg/cache"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// NewRouter returns a new router with all the routes defined in this package.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", c.HandleHealth).Methods("GET")
	r.HandleFunc("/readyz", c.HandleReady).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/height", c.Height).Methods("GET")
	v1.HandleFunc("/wallet/balances", c.WalletBalances).Methods("GET")
	v1.HandleFunc("/wallet/btc-balance", c.BTCBalance).Methods("GET")
	v1.HandleFunc("/wallet/sellable", c.SellableCurrencies).Methods("GET")
	v1.HandleFunc("/history", c.TransactionHistory).Methods("GET")
	v1.HandleFunc("/fees", c.FeeEstimates).Methods("GET")
	v1.HandleFunc("/btc-price", c.BTCPrice).Methods("GET")
	v1.HandleFunc("/tokens", c.TokenDisplay).Methods("GET")
	v1.HandleFunc("/frbtc-premium", c.FrbtcPremium).Methods("GET")
	v1.HandleFunc("/pools/metadata", c.PoolsMetadata).Methods("GET")

	r.HandleFunc("/ws", c.HandleWebSocket)

	return r, nil
}

// WithCORS allows browser wallets on any origin to read the API.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeResult answers a descriptor read. Disabled descriptors mean the
// provider is not ready yet.
func (c *Controller) writeResult(w http.ResponseWriter, v any, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, cache.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, "provider not ready")
	case errors.Is(err, cache.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		c.App.Logger.Warn("descriptor fetch failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
