package handler

import (
	"log/slog"
	"net/http"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/service"
)

// GroupHandler serves /groups and the membership routes under
// /groups/{groupId}/recipes.
type GroupHandler struct {
	groups *service.GroupService
	logger *slog.Logger
}

func NewGroupHandler(groups *service.GroupService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, logger: logger}
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required,notblank,max=60"`
	Description string `json:"description" validate:"max=280"`
	Color       string `json:"color" validate:"max=32"`
	Icon        string `json:"icon" validate:"max=64"`
}

type updateGroupRequest struct {
	Name        *string `json:"name" validate:"omitnil,notblank,max=60"`
	Description *string `json:"description" validate:"omitnil,max=280"`
	Color       *string `json:"color" validate:"omitnil,max=32"`
	Icon        *string `json:"icon" validate:"omitnil,max=64"`
}

func (req updateGroupRequest) empty() bool {
	return req.Name == nil && req.Description == nil && req.Color == nil && req.Icon == nil
}

type groupResponse struct {
	Group *model.Group `json:"group"`
}

type membershipResponse struct {
	Group      *model.Group `json:"group"`
	WasAdded   *bool        `json:"wasAdded,omitempty"`
	WasRemoved *bool        `json:"wasRemoved,omitempty"`
}

func (h *GroupHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	q, err := listQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	page, err := h.groups.List(r.Context(), userID, q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *GroupHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	var req createGroupRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	group, err := h.groups.Create(r.Context(), userID, service.GroupInput(req))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupResponse{Group: group})
}

func (h *GroupHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	group, err := h.groups.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{Group: group})
}

func (h *GroupHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req updateGroupRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.empty() {
		writeError(w, h.logger, apperror.ValidationFailed("", "at least one field must be provided"))
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	group, err := h.groups.Update(r.Context(), userID, id, service.GroupPatch(req))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{Group: group})
}

// HandleDelete removes the group. Its recipes are not touched.
func (h *GroupHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.groups.Delete(r.Context(), userID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleListRecipes handles GET /groups/{groupId}/recipes.
func (h *GroupHandler) HandleListRecipes(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q, err := listQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	page, err := h.groups.ListRecipes(r.Context(), userID, groupID, q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleAddRecipe handles POST /groups/{groupId}/recipes/{id}.
func (h *GroupHandler) HandleAddRecipe(w http.ResponseWriter, r *http.Request) {
	userID, groupID, recipeID, ok := h.membershipParams(w, r)
	if !ok {
		return
	}

	group, added, err := h.groups.AddRecipe(r.Context(), userID, groupID, recipeID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{Group: group, WasAdded: &added})
}

// HandleRemoveRecipe handles DELETE /groups/{groupId}/recipes/{id}.
func (h *GroupHandler) HandleRemoveRecipe(w http.ResponseWriter, r *http.Request) {
	userID, groupID, recipeID, ok := h.membershipParams(w, r)
	if !ok {
		return
	}

	group, removed, err := h.groups.RemoveRecipe(r.Context(), userID, groupID, recipeID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{Group: group, WasRemoved: &removed})
}

func (h *GroupHandler) membershipParams(w http.ResponseWriter, r *http.Request) (userID, groupID, recipeID string, ok bool) {
	userID, ok = callerID(w, r, h.logger)
	if !ok {
		return "", "", "", false
	}
	groupID, err := pathID(r, "groupId")
	if err != nil {
		writeError(w, h.logger, err)
		return "", "", "", false
	}
	recipeID, err = pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return "", "", "", false
	}
	return userID, groupID, recipeID, true
}
