package controllers

import (
	"net/http"

	"github.com/microsoft/service-fabric-sub058/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general    *GeneralController
	containers *ContainersController
}

// NewControllerRegistry initializes all controllers with the provided runtime.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	return &ControllerRegistry{
		general:    NewGeneralController(rt),
		containers: NewContainersController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.containers.RegisterRoutes(mux)
}
