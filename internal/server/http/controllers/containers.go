package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/runtime"
)

// ContainersController serves read-only views of containers on disk.
//
// Containers are opened through the runtime's manager, so a container a
// driver client holds open is shared rather than reopened.
type ContainersController struct {
	rt *runtime.Runtime
}

// NewContainersController creates a new containers controller.
func NewContainersController(rt *runtime.Runtime) *ContainersController {
	return &ContainersController{rt: rt}
}

// RegisterRoutes registers container routes with the given mux.
func (c *ContainersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/containers/stat", c.handleStat)
	mux.HandleFunc("/v1/containers/alias", c.handleAlias)
}

func (c *ContainersController) open(w http.ResponseWriter, r *http.Request) (container.Container, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return nil, false
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return nil, false
	}
	id := uuid.Nil
	if s := r.URL.Query().Get("id"); s != "" {
		parsed, err := uuid.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return nil, false
		}
		id = parsed
	}
	cn, err := c.rt.Containers().OpenContainer(r.Context(), path, id)
	if err != nil {
		writeContainerError(w, err)
		return nil, false
	}
	return cn, true
}

// handleStat reports capacity and usage of the container at ?path=.
func (c *ContainersController) handleStat(w http.ResponseWriter, r *http.Request) {
	cn, ok := c.open(w, r)
	if !ok {
		return
	}
	defer cn.Close(context.WithoutCancel(r.Context()))
	st, err := cn.Stat(r.Context())
	if err != nil {
		writeContainerError(w, err)
		return
	}
	writeJSON(w, statResp{
		ID:           st.ID.String(),
		Path:         st.Path,
		Capacity:     st.Capacity,
		Used:         st.Used,
		PercentUsed:  st.PercentUsed(),
		Streams:      st.Streams,
		MaxStreams:   st.MaxStreams,
		MaxBlockSize: st.MaxBlockSize,
		Human:        humanize.IBytes(uint64(st.Used)) + " / " + humanize.IBytes(uint64(st.Capacity)),
	})
}

// handleAlias resolves ?alias= inside the container at ?path=.
func (c *ContainersController) handleAlias(w http.ResponseWriter, r *http.Request) {
	alias := r.URL.Query().Get("alias")
	if alias == "" {
		writeError(w, http.StatusBadRequest, "alias is required")
		return
	}
	cn, ok := c.open(w, r)
	if !ok {
		return
	}
	defer cn.Close(context.WithoutCancel(r.Context()))
	id, err := cn.ResolveAlias(r.Context(), alias)
	if err != nil {
		writeContainerError(w, err)
		return
	}
	writeJSON(w, aliasResp{Alias: alias, LogID: id.String()})
}

// writeContainerError maps container errors to HTTP status codes.
func writeContainerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, container.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, container.ErrGone):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, container.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
