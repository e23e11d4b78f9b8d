// Package repository declares the storage contracts the services depend on.
// The sqlite subpackage is the production implementation; service tests use
// in-memory fakes.
package repository

import (
	"context"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
)

// ListOptions is an already-clamped LIMIT/OFFSET window.
type ListOptions struct {
	Limit  int
	Offset int
}

// RecipeFilter narrows a recipe listing. Zero values mean "no filter".
// Results are always ordered by title slug ascending.
type RecipeFilter struct {
	OwnerID string // only recipes of this owner
	Query   string // case-insensitive substring of the title
	InGroup string // only members of this group
	ListOptions
}

// GroupFilter narrows a group listing, ordered by name slug ascending.
type GroupFilter struct {
	OwnerID string
	Query   string // case-insensitive substring of the name
	ListOptions
}

// UserRepository stores accounts. Email lookups expect an already
// normalized (trimmed, lowercased) address.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	// Delete removes the user together with every recipe, group and
	// membership they own.
	Delete(ctx context.Context, id string) error
}

// RecipeRepository stores recipes. Create and Update return a Conflict
// AppError when (owner, title slug) is already taken; that storage-level
// check is authoritative even if a caller pre-checked with SlugTaken.
type RecipeRepository interface {
	Create(ctx context.Context, recipe *model.Recipe) error
	GetByID(ctx context.Context, id string) (*model.Recipe, error)
	Update(ctx context.Context, recipe *model.Recipe) error
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, f RecipeFilter) ([]model.Recipe, int, error)
	SlugTaken(ctx context.Context, ownerID, slug, exceptID string) (bool, error)
	ImagePublicIDsByOwner(ctx context.Context, ownerID string) ([]string, error)
}

// GroupRepository stores groups and their membership sets.
type GroupRepository interface {
	Create(ctx context.Context, group *model.Group) error
	GetByID(ctx context.Context, id string) (*model.Group, error)
	Update(ctx context.Context, group *model.Group) error
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, f GroupFilter) ([]model.Group, int, error)
	SlugTaken(ctx context.Context, ownerID, slug, exceptID string) (bool, error)
	// AddRecipe and RemoveRecipe are atomic set operations. They report
	// whether the set actually changed.
	AddRecipe(ctx context.Context, groupID, recipeID string) (bool, error)
	RemoveRecipe(ctx context.Context, groupID, recipeID string) (bool, error)
}
