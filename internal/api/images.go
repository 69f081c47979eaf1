package api

import (
	"net/http"
	"strconv"

	"github.com/Cartooli/math-boredgames-sub001/internal/checksum"
)

// Image handles GET /api/problems/{id}/image and serves the decoded inline
// image with its declared MIME type.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	id, ok := problemID(w, r)
	if !ok {
		return
	}
	mime, data, err := h.svc.Image(r.Context(), id)
	if err != nil {
		writeError(w, "serve image", err)
		return
	}
	if notModified(w, r, checksum.ETag(checksum.Sum(data))) {
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
