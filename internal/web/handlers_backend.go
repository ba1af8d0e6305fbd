package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// handleBackend proxies a reference data request to the backend API,
// serving the embedded fixture when the backend is down. X-Data-Source
// tells the client which one answered.
func (s *Server) handleBackend(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	name := chi.URLParam(r, "name")

	res, err := s.backend.Fetch(r.Context(), group, name, r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("X-Data-Source", string(res.Source))
	render.JSON(w, r, res.Data)
}

// handleBackendStatus reports whether the backend API is reachable.
func (s *Server) handleBackendStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.backend.Status(r.Context()))
}
