package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/repository"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/slug"
)

const MaxRecipeTitleLength = 120

// ReadPolicy decides what a caller sees when reading someone else's recipe
// by id. Updates and deletes are owner-only regardless.
type ReadPolicy string

const (
	ReadOwner          ReadPolicy = "owner"           // NotFound
	ReadOwnerForbidden ReadPolicy = "owner-forbidden" // Forbidden
	ReadAny            ReadPolicy = "any"
)

// RecipeInput is a complete recipe as submitted on create.
type RecipeInput struct {
	Title          string
	Description    string
	Ingredients    []model.Ingredient
	Steps          []string
	Servings       int
	CookTime       int
	Images         []string
	ImagePublicIDs []string
	Tags           []string
}

// RecipePatch is a partial update. Nil pointers and nil slices leave the
// field unchanged; an empty non-nil slice clears it.
type RecipePatch struct {
	Title          *string
	Description    *string
	Ingredients    []model.Ingredient
	Steps          []string
	Servings       *int
	CookTime       *int
	Images         []string
	ImagePublicIDs []string
	Tags           []string
}

type RecipeService struct {
	recipes repository.RecipeRepository
	cleaner MediaCleaner
	policy  ReadPolicy
	logger  *slog.Logger
}

func NewRecipeService(recipes repository.RecipeRepository, cleaner MediaCleaner, policy ReadPolicy, logger *slog.Logger) *RecipeService {
	if cleaner == nil {
		cleaner = NopCleaner{}
	}
	if policy == "" {
		policy = ReadOwner
	}
	return &RecipeService{recipes: recipes, cleaner: cleaner, policy: policy, logger: logger}
}

// Create stores a new recipe for ownerID.
func (s *RecipeService) Create(ctx context.Context, ownerID string, in RecipeInput) (*model.Recipe, error) {
	recipe := &model.Recipe{
		OwnerID:        ownerID,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		Ingredients:    in.Ingredients,
		Steps:          in.Steps,
		Servings:       in.Servings,
		CookTime:       in.CookTime,
		Images:         orEmpty(in.Images),
		ImagePublicIDs: orEmpty(in.ImagePublicIDs),
		Tags:           orEmpty(in.Tags),
	}
	if err := validateRecipe(recipe); err != nil {
		return nil, err
	}
	if err := checkMediaIDs(ownerID, recipe.ImagePublicIDs); err != nil {
		return nil, err
	}
	recipe.TitleSlug = slug.Make(recipe.Title)

	if err := s.checkSlug(ctx, recipe, ""); err != nil {
		return nil, err
	}
	if err := s.recipes.Create(ctx, recipe); err != nil {
		return nil, err
	}

	s.logger.Info("recipe created",
		slog.String("id", recipe.ID),
		slog.String("owner", ownerID),
		slog.String("slug", recipe.TitleSlug),
	)
	return recipe, nil
}

// Get returns a recipe subject to the read policy.
func (s *RecipeService) Get(ctx context.Context, callerID, id string) (*model.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe.OwnerID == callerID {
		return recipe, nil
	}
	switch s.policy {
	case ReadAny:
		return recipe, nil
	case ReadOwnerForbidden:
		return nil, apperror.Forbidden("you do not have access to this recipe")
	default:
		return nil, apperror.NotFound("recipe", id)
	}
}

// Update applies patch to a recipe the caller owns. Image public ids that
// the patch drops are scheduled for deletion once the update is stored.
func (s *RecipeService) Update(ctx context.Context, callerID, id string, patch RecipePatch) (*model.Recipe, error) {
	recipe, err := s.owned(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	previousIDs := recipe.ImagePublicIDs

	titleChanged := false
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		titleChanged = title != recipe.Title
		recipe.Title = title
	}
	if patch.Description != nil {
		recipe.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Ingredients != nil {
		recipe.Ingredients = patch.Ingredients
	}
	if patch.Steps != nil {
		recipe.Steps = patch.Steps
	}
	if patch.Servings != nil {
		recipe.Servings = *patch.Servings
	}
	if patch.CookTime != nil {
		recipe.CookTime = *patch.CookTime
	}
	if patch.Images != nil {
		recipe.Images = patch.Images
	}
	if patch.ImagePublicIDs != nil {
		recipe.ImagePublicIDs = patch.ImagePublicIDs
	}
	if patch.Tags != nil {
		recipe.Tags = patch.Tags
	}

	if err := validateRecipe(recipe); err != nil {
		return nil, err
	}
	if patch.ImagePublicIDs != nil {
		if err := checkMediaIDs(callerID, patch.ImagePublicIDs); err != nil {
			return nil, err
		}
	}
	if titleChanged {
		recipe.TitleSlug = slug.Make(recipe.Title)
		if err := s.checkSlug(ctx, recipe, recipe.ID); err != nil {
			return nil, err
		}
	}

	if err := s.recipes.Update(ctx, recipe); err != nil {
		return nil, err
	}

	if removed := ownedMedia(callerID, missingFrom(previousIDs, recipe.ImagePublicIDs)); len(removed) > 0 {
		s.cleaner.Schedule(removed...)
	}
	return recipe, nil
}

// Delete removes a recipe the caller owns, then schedules deletion of all
// its media. Group memberships go with it.
func (s *RecipeService) Delete(ctx context.Context, callerID, id string) error {
	recipe, err := s.owned(ctx, callerID, id)
	if err != nil {
		return err
	}
	if err := s.recipes.Delete(ctx, callerID, id); err != nil {
		return err
	}

	s.cleaner.Schedule(ownedMedia(callerID, recipe.ImagePublicIDs)...)
	s.logger.Info("recipe deleted", slog.String("id", id), slog.String("owner", callerID))
	return nil
}

// List pages through recipes sorted by title slug. ScopePersonal limits the
// listing to the caller's recipes; ScopeGeneral covers every owner.
func (s *RecipeService) List(ctx context.Context, callerID string, q ListQuery) (*model.Page[model.Recipe], error) {
	filter, page, limit, err := recipeFilter(callerID, q)
	if err != nil {
		return nil, err
	}
	items, total, err := s.recipes.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing recipes: %w", err)
	}
	return newPage(page, limit, total, items), nil
}

func recipeFilter(callerID string, q ListQuery) (repository.RecipeFilter, int, int, error) {
	scope := q.Scope
	if scope == "" {
		scope = model.ScopeGeneral
	}
	if !scope.Valid() {
		return repository.RecipeFilter{}, 0, 0, apperror.ValidationFailed("scope", "scope must be personal or general")
	}

	page, limit, opts := q.window()
	f := repository.RecipeFilter{Query: strings.TrimSpace(q.Query), ListOptions: opts}
	if scope == model.ScopePersonal {
		f.OwnerID = callerID
	}
	return f, page, limit, nil
}

// owned loads a recipe and hides it unless callerID owns it.
func (s *RecipeService) owned(ctx context.Context, callerID, id string) (*model.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe.OwnerID != callerID {
		return nil, apperror.NotFound("recipe", id)
	}
	return recipe, nil
}

func (s *RecipeService) checkSlug(ctx context.Context, recipe *model.Recipe, exceptID string) error {
	if recipe.TitleSlug == "" {
		return apperror.ValidationFailed("title", "title must contain at least one letter or digit")
	}
	taken, err := s.recipes.SlugTaken(ctx, recipe.OwnerID, recipe.TitleSlug, exceptID)
	if err != nil {
		return fmt.Errorf("checking recipe slug: %w", err)
	}
	if taken {
		return apperror.Conflict("recipe", "title", recipe.Title)
	}
	return nil
}

func validateRecipe(r *model.Recipe) error {
	switch {
	case r.Title == "":
		return apperror.ValidationFailed("title", "title is required")
	case utf8.RuneCountInString(r.Title) > MaxRecipeTitleLength:
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxRecipeTitleLength))
	case len(r.Ingredients) == 0:
		return apperror.ValidationFailed("ingredients", "at least one ingredient is required")
	case len(r.Steps) == 0:
		return apperror.ValidationFailed("steps", "at least one step is required")
	case r.Servings < 1:
		return apperror.ValidationFailed("servings", "servings must be at least 1")
	case r.CookTime < 1:
		return apperror.ValidationFailed("cookTime", "cookTime must be at least 1 minute")
	}
	for _, ing := range r.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			return apperror.ValidationFailed("ingredients", "every ingredient needs a name")
		}
	}
	for _, step := range r.Steps {
		if strings.TrimSpace(step) == "" {
			return apperror.ValidationFailed("steps", "steps must not be empty")
		}
	}
	return nil
}

// missingFrom returns the ids in before that are absent from after.
func missingFrom(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, id := range after {
		keep[id] = struct{}{}
	}
	var gone []string
	for _, id := range before {
		if _, ok := keep[id]; !ok {
			gone = append(gone, id)
		}
	}
	return gone
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
