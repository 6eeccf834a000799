package controllers

import (
	"net/http"

	"github.com/microsoft/service-fabric-sub058/internal/container/local"
	"github.com/microsoft/service-fabric-sub058/internal/runtime"
	grpcserver "github.com/microsoft/service-fabric-sub058/internal/server/grpc"
)

// GeneralController handles health and version endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Health checks (/v1/healthz)
// - Driver and container versions (/v1/version)
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/version", c.handleVersion)
}

// handleHealth returns 200 OK with {"status": "ok"} if healthy, 503 Service
// Unavailable otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, versionResp{
		Driver:    grpcserver.Version,
		Container: c.rt.Containers().Name(),
		Version:   local.Version,
	})
}
