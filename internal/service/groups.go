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

const (
	MaxGroupNameLength        = 60
	MaxGroupDescriptionLength = 280
)

type GroupInput struct {
	Name        string
	Description string
	Color       string
	Icon        string
}

// GroupPatch is a partial update; nil fields are left unchanged.
type GroupPatch struct {
	Name        *string
	Description *string
	Color       *string
	Icon        *string
}

// GroupService manages groups and their recipe membership. Groups are
// private: every operation requires the caller to own the group.
type GroupService struct {
	groups  repository.GroupRepository
	recipes repository.RecipeRepository
	// allowForeign lets a group hold recipes owned by other users.
	allowForeign bool
	logger       *slog.Logger
}

func NewGroupService(groups repository.GroupRepository, recipes repository.RecipeRepository, allowForeign bool, logger *slog.Logger) *GroupService {
	return &GroupService{groups: groups, recipes: recipes, allowForeign: allowForeign, logger: logger}
}

func (s *GroupService) Create(ctx context.Context, ownerID string, in GroupInput) (*model.Group, error) {
	group := &model.Group{
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Color:       strings.TrimSpace(in.Color),
		Icon:        strings.TrimSpace(in.Icon),
	}
	if err := validateGroup(group); err != nil {
		return nil, err
	}
	group.NameSlug = slug.Make(group.Name)
	if err := s.checkSlug(ctx, group, ""); err != nil {
		return nil, err
	}

	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	s.logger.Info("group created",
		slog.String("id", group.ID),
		slog.String("owner", ownerID),
		slog.String("slug", group.NameSlug),
	)
	return group, nil
}

func (s *GroupService) Get(ctx context.Context, callerID, id string) (*model.Group, error) {
	return s.owned(ctx, callerID, id)
}

func (s *GroupService) Update(ctx context.Context, callerID, id string, patch GroupPatch) (*model.Group, error) {
	if patch.Name == nil && patch.Description == nil && patch.Color == nil && patch.Icon == nil {
		return nil, apperror.ValidationFailed("", "at least one field must be provided")
	}

	group, err := s.owned(ctx, callerID, id)
	if err != nil {
		return nil, err
	}

	nameChanged := false
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		nameChanged = name != group.Name
		group.Name = name
	}
	if patch.Description != nil {
		group.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Color != nil {
		group.Color = strings.TrimSpace(*patch.Color)
	}
	if patch.Icon != nil {
		group.Icon = strings.TrimSpace(*patch.Icon)
	}

	if err := validateGroup(group); err != nil {
		return nil, err
	}
	if nameChanged {
		group.NameSlug = slug.Make(group.Name)
		if err := s.checkSlug(ctx, group, group.ID); err != nil {
			return nil, err
		}
	}

	if err := s.groups.Update(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// Delete removes the group and its membership set. Member recipes are not
// modified.
func (s *GroupService) Delete(ctx context.Context, callerID, id string) error {
	if err := s.groups.Delete(ctx, callerID, id); err != nil {
		return err
	}
	s.logger.Info("group deleted", slog.String("id", id), slog.String("owner", callerID))
	return nil
}

// List pages through the caller's groups sorted by name slug. Scope is
// ignored: groups are never listed across owners.
func (s *GroupService) List(ctx context.Context, callerID string, q ListQuery) (*model.Page[model.Group], error) {
	page, limit, opts := q.window()
	items, total, err := s.groups.List(ctx, repository.GroupFilter{
		OwnerID:     callerID,
		Query:       strings.TrimSpace(q.Query),
		ListOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	return newPage(page, limit, total, items), nil
}

// AddRecipe puts recipeID into the group. Adding a member again is a no-op
// reported as added=false. The recipe record itself is never modified.
func (s *GroupService) AddRecipe(ctx context.Context, callerID, groupID, recipeID string) (*model.Group, bool, error) {
	if _, err := s.owned(ctx, callerID, groupID); err != nil {
		return nil, false, err
	}

	recipe, err := s.recipes.GetByID(ctx, recipeID)
	if err != nil {
		return nil, false, err
	}
	if !s.allowForeign && recipe.OwnerID != callerID {
		return nil, false, apperror.NotFound("recipe", recipeID)
	}

	added, err := s.groups.AddRecipe(ctx, groupID, recipeID)
	if err != nil {
		return nil, false, fmt.Errorf("adding recipe %s to group %s: %w", recipeID, groupID, err)
	}
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	return group, added, nil
}

// RemoveRecipe takes recipeID out of the group; removing a non-member is a
// no-op reported as removed=false.
func (s *GroupService) RemoveRecipe(ctx context.Context, callerID, groupID, recipeID string) (*model.Group, bool, error) {
	if _, err := s.owned(ctx, callerID, groupID); err != nil {
		return nil, false, err
	}

	removed, err := s.groups.RemoveRecipe(ctx, groupID, recipeID)
	if err != nil {
		return nil, false, fmt.Errorf("removing recipe %s from group %s: %w", recipeID, groupID, err)
	}
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	return group, removed, nil
}

// ListRecipes pages through the group's recipes with the same contract as
// RecipeService.List: scope, title filter and slug order.
func (s *GroupService) ListRecipes(ctx context.Context, callerID, groupID string, q ListQuery) (*model.Page[model.Recipe], error) {
	if _, err := s.owned(ctx, callerID, groupID); err != nil {
		return nil, err
	}

	filter, page, limit, err := recipeFilter(callerID, q)
	if err != nil {
		return nil, err
	}
	filter.InGroup = groupID

	items, total, err := s.recipes.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing recipes of group %s: %w", groupID, err)
	}
	return newPage(page, limit, total, items), nil
}

func (s *GroupService) owned(ctx context.Context, callerID, id string) (*model.Group, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.OwnerID != callerID {
		return nil, apperror.NotFound("group", id)
	}
	return group, nil
}

func (s *GroupService) checkSlug(ctx context.Context, group *model.Group, exceptID string) error {
	if group.NameSlug == "" {
		return apperror.ValidationFailed("name", "name must contain at least one letter or digit")
	}
	taken, err := s.groups.SlugTaken(ctx, group.OwnerID, group.NameSlug, exceptID)
	if err != nil {
		return fmt.Errorf("checking group slug: %w", err)
	}
	if taken {
		return apperror.Conflict("group", "name", group.Name)
	}
	return nil
}

func validateGroup(g *model.Group) error {
	if g.Name == "" {
		return apperror.ValidationFailed("name", "name is required")
	}
	if utf8.RuneCountInString(g.Name) > MaxGroupNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxGroupNameLength))
	}
	if utf8.RuneCountInString(g.Description) > MaxGroupDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxGroupDescriptionLength))
	}
	return nil
}
