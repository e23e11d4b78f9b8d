package handler

import (
	"log/slog"
	"net/http"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/service"
)

// RecipeHandler serves /recipes.
type RecipeHandler struct {
	recipes *service.RecipeService
	logger  *slog.Logger
}

func NewRecipeHandler(recipes *service.RecipeService, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, logger: logger}
}

type ingredientRequest struct {
	Name     string `json:"name" validate:"required,notblank,max=120"`
	Quantity string `json:"quantity" validate:"max=40"`
	Unit     string `json:"unit" validate:"max=40"`
	Notes    string `json:"notes" validate:"max=280"`
}

type createRecipeRequest struct {
	Title          string              `json:"title" validate:"required,notblank,max=120"`
	Description    string              `json:"description" validate:"max=2000"`
	Ingredients    []ingredientRequest `json:"ingredients" validate:"required,min=1,max=100,dive"`
	Steps          []string            `json:"steps" validate:"required,min=1,max=100,dive,notblank,max=2000"`
	Servings       int                 `json:"servings" validate:"required,min=1"`
	CookTime       int                 `json:"cookTime" validate:"required,min=1"`
	Images         []string            `json:"images" validate:"max=20,dive,http_url"`
	ImagePublicIDs []string            `json:"imagePublicIds" validate:"max=20,dive,notblank,max=300"`
	Tags           []string            `json:"tags" validate:"max=30,dive,notblank,max=50"`
}

// updateRecipeRequest mirrors createRecipeRequest with every field
// optional. A slice present in the body replaces the stored one.
type updateRecipeRequest struct {
	Title          *string             `json:"title" validate:"omitnil,notblank,max=120"`
	Description    *string             `json:"description" validate:"omitnil,max=2000"`
	Ingredients    []ingredientRequest `json:"ingredients" validate:"omitnil,min=1,max=100,dive"`
	Steps          []string            `json:"steps" validate:"omitnil,min=1,max=100,dive,notblank,max=2000"`
	Servings       *int                `json:"servings" validate:"omitnil,min=1"`
	CookTime       *int                `json:"cookTime" validate:"omitnil,min=1"`
	Images         []string            `json:"images" validate:"omitnil,max=20,dive,http_url"`
	ImagePublicIDs []string            `json:"imagePublicIds" validate:"omitnil,max=20,dive,notblank,max=300"`
	Tags           []string            `json:"tags" validate:"omitnil,max=30,dive,notblank,max=50"`
}

type recipeResponse struct {
	Recipe *model.Recipe `json:"recipe"`
}

func toIngredients(in []ingredientRequest) []model.Ingredient {
	if in == nil {
		return nil
	}
	out := make([]model.Ingredient, len(in))
	for i, ing := range in {
		out[i] = model.Ingredient(ing)
	}
	return out
}

// HandleList handles GET /recipes?scope=&q=&page=&limit=.
func (h *RecipeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	q, err := listQuery(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	page, err := h.recipes.List(r.Context(), userID, q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *RecipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	var req createRecipeRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Create(r.Context(), userID, service.RecipeInput{
		Title:          req.Title,
		Description:    req.Description,
		Ingredients:    toIngredients(req.Ingredients),
		Steps:          req.Steps,
		Servings:       req.Servings,
		CookTime:       req.CookTime,
		Images:         req.Images,
		ImagePublicIDs: req.ImagePublicIDs,
		Tags:           req.Tags,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, recipeResponse{Recipe: recipe})
}

func (h *RecipeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipeResponse{Recipe: recipe})
}

func (h *RecipeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req updateRecipeRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	recipe, err := h.recipes.Update(r.Context(), userID, id, service.RecipePatch{
		Title:          req.Title,
		Description:    req.Description,
		Ingredients:    toIngredients(req.Ingredients),
		Steps:          req.Steps,
		Servings:       req.Servings,
		CookTime:       req.CookTime,
		Images:         req.Images,
		ImagePublicIDs: req.ImagePublicIDs,
		Tags:           req.Tags,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipeResponse{Recipe: recipe})
}

func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r, h.logger)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.recipes.Delete(r.Context(), userID, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
