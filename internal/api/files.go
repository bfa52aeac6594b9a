package api

import (
	"bytes"
	"net/http"
	"path"
	"time"

	"github.com/starford/folio/internal/checksum"
)

// ServeFile handles GET /api/files/*: the raw bytes of any vault file.
// Range and conditional requests are handled by http.ServeContent.
//
//	@Summary		Download a vault file
//	@Tags			files
//	@Param			path	path	string	true	"Vault-relative file path"
//	@Success		200
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	data, err := h.svc.ReadFile(r.Context(), p)
	if err != nil {
		writeError(w, "read file", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(data))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, path.Base(p), time.Time{}, bytes.NewReader(data))
}
