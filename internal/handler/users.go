package handler

import (
	"log/slog"
	"net/http"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/auth"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/service"
)

// UserHandler serves /users/me. Every route sits behind auth.RequireAuth.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type updateProfileRequest struct {
	Name *string `json:"name" validate:"omitnil,notblank,max=80"`
	Bio  *string `json:"bio" validate:"omitnil,max=280"`
}

type userResponse struct {
	User model.PublicUser `json:"user"`
}

func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, service.ProfilePatch{Name: req.Name, Bio: req.Bio})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleDeleteMe deletes the account with everything it owns.
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.users.DeleteAccount(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// callerID reads the authenticated user id placed by auth.RequireAuth.
func callerID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, logger, apperror.Unauthorized("authentication required"))
		return "", false
	}
	return id, true
}
