package menu

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/auth"
)

// ImageUploader stores an image body
type ImageUploader interface {
	Upload(ctx context.Context, productID, contentType string, body io.Reader, size int64) (string, error)
}

// UploadHandler accepts PUT /api/products/{id}/image from admins whose
// clients cannot use a presigned URL. Claims must already be on the context.
type UploadHandler struct {
	images ImageUploader
}

func NewUploadHandler(images ImageUploader) *UploadHandler {
	return &UploadHandler{images: images}
}

func (h *UploadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("PUT /api/products/{id}/image", h)
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if claims.Role != auth.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if h.images == nil {
		http.Error(w, ErrStorageDisabled.Error(), http.StatusServiceUnavailable)
		return
	}

	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}
	if r.ContentLength < 0 {
		http.Error(w, "content length required", http.StatusLengthRequired)
		return
	}

	body := http.MaxBytesReader(w, r.Body, MaxImageSize)
	url, err := h.images.Upload(r.Context(), r.PathValue("id"), contentType, body, r.ContentLength)
	switch {
	case errors.Is(err, ErrImageTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	case errors.Is(err, ErrUnsupportedImageType):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	case errors.Is(err, ErrInvalidProductID):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Error().Err(err).Str("product_id", r.PathValue("id")).Msg("image upload failed")
		http.Error(w, "upload failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]string{"url": url}); err != nil {
		log.Error().Err(err).Msg("failed to encode upload response")
	}
}
