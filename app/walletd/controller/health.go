package controller

import (
	"net/http"
)

// HandleHealth reports liveness plus the pieces a probe might care about.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":        "ok",
		"network":       c.App.Network,
		"providerReady": c.App.Provider.Ready(),
		"pollerState":   c.App.Poller.State().String(),
	}
	if h, ok := c.App.Poller.Height(); ok {
		status["height"] = h
	}
	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(r.Context()); err != nil {
			status["redis"] = "errored"
		} else {
			status["redis"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleReady answers 200 once the provider is ready.
func (c *Controller) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if c.App.Provider.Ready() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}
