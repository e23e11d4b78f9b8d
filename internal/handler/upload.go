package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/media"
)

// UploadSigner reserves a media key for ownerID and signs a direct upload.
// *media.S3Store implements it.
type UploadSigner interface {
	PresignUpload(ctx context.Context, ownerID string) (*media.Upload, error)
}

// UploadHandler serves /api/upload. Image bytes never pass through the
// API: the client PUTs straight to uploadUrl and then stores publicId and
// url on the recipe.
type UploadHandler struct {
	signer UploadSigner
	logger *slog.Logger
}

func NewUploadHandler(signer UploadSigner, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{signer: signer, logger: logger}
}

// HandleSignature handles GET /api/upload/signature.
func (h *UploadHandler) HandleSignature(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}

	upload, err := h.signer.PresignUpload(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}
