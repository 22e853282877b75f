package api

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/sorvx/Sorvx-main-ai/internal/auth"
	"github.com/sorvx/Sorvx-main-ai/internal/upload"
)

type uploadHandler struct {
	store  *upload.Store
	gate   *auth.Gate
	logger *slog.Logger
}

type uploadResponse struct {
	URL         string `json:"url"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// multipart form memory threshold; larger parts spill to temp files.
const uploadMemoryLimit = 1 << 20

// save handles POST /api/v1/files/upload with a multipart "file" part.
// Validation failures come back as a single 400 with all reasons joined.
func (h *uploadHandler) save(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate.Authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", h.logger)
		return
	}

	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request must be multipart form data", h.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "no file uploaded", h.logger)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	stored, err := h.store.Save(header.Filename, contentType, header.Size, file)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, "invalid_file", err.Error(), h.logger)
			return
		}
		h.logger.Error("upload failed", "file", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "upload failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		URL:         "/api/v1/files/" + stored,
		Pathname:    stored,
		ContentType: contentType,
		Size:        header.Size,
	}, h.logger)
}

// get handles GET /api/v1/files/{name}.
func (h *uploadHandler) get(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate.Authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", h.logger)
		return
	}

	name := r.PathValue("name")
	f, err := h.store.Open(name)
	if err != nil {
		if errors.Is(err, upload.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "file not found", h.logger)
			return
		}
		h.logger.Error("file open failed", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Debug("file write interrupted", "file", name, "error", err)
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, upload.ErrFileTooLarge) ||
		errors.Is(err, upload.ErrUnsupportedType) ||
		errors.Is(err, upload.ErrInvalidName)
}
