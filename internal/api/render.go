package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/checksum"
)

const maxResizeBody = 64 << 10

// RenderNote handles GET /api/render/notes/*.
//
//	@Summary		Render a note to HTML with PDF directives processed
//	@Tags			render
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Param			replace	query		string	false	"Session superseded by this render"
//	@Success		200		{object}	RenderedNote
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render/notes/{path} [get]
func (h *Handler) RenderNote(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	out, err := h.svc.RenderNote(r.Context(), path, r.URL.Query().Get("replace"))
	if err != nil {
		writeError(w, "render note", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Resize handles POST /api/render/sessions/{session}/resize.
//
//	@Summary		Report thumbnail container sizes
//	@Tags			render
//	@Accept			json
//	@Produce		json
//	@Param			session	path		string			true	"Render session"
//	@Param			body	body		[]ResizeReport	true	"Size reports"
//	@Success		202		{object}	ResizeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render/sessions/{session}/resize [post]
func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxResizeBody)
	var reports []ResizeReport
	if err := json.NewDecoder(r.Body).Decode(&reports); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	for _, rep := range reports {
		if err := rep.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}

	sess, err := h.svc.Sessions().Get(chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, "resize", err)
		return
	}
	resp := ResizeResponse{Accepted: []string{}, Missing: []string{}}
	for _, rep := range reports {
		if err := sess.Resize(rep.Element, rep.Width, rep.DPR); err != nil {
			resp.Missing = append(resp.Missing, rep.Element)
			continue
		}
		resp.Accepted = append(resp.Accepted, rep.Element)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// Thumbnail handles GET /api/render/sessions/{session}/thumbnails/{element}.
// It answers 202 until the element has a frame.
//
//	@Summary		Fetch the latest thumbnail frame
//	@Tags			render
//	@Produce		png
//	@Param			session	path	string	true	"Render session"
//	@Param			element	path	string	true	"Thumbnail element"
//	@Success		200
//	@Success		202		{object}	map[string]string
//	@Success		304
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render/sessions/{session}/thumbnails/{element} [get]
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Sessions().Get(chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, "thumbnail", err)
		return
	}
	th, err := sess.Thumbnail(chi.URLParam(r, "element"))
	if err != nil {
		writeError(w, "thumbnail", err)
		return
	}
	frame, ok := th.Frame()
	if !ok {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}

	etag := checksum.ETag(frame.PNG)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Frame-Version", strconv.FormatUint(frame.Version, 10))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.PNG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.PNG)
}

// CloseSession handles DELETE /api/render/sessions/{session}.
//
//	@Summary		Tear down a render session
//	@Tags			render
//	@Param			session	path	string	true	"Render session"
//	@Success		204
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render/sessions/{session} [delete]
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Sessions().Close(chi.URLParam(r, "session")); err != nil {
		writeError(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
