package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/repository"
)

var _ repository.RecipeRepository = (*RecipeStore)(nil)

// RecipeStore is the recipes table.
type RecipeStore struct {
	conn *sql.DB
}

// Recipes returns the recipe repository backed by db.
func (db *DB) Recipes() *RecipeStore {
	return &RecipeStore{conn: db.conn}
}

const recipeColumns = `id, owner_id, title, title_slug, description, ingredients, steps,
	servings, cook_time, images, image_public_ids, tags, created_at, updated_at`

// recipeRow holds the JSON-encoded list columns of a recipe.
type recipeRow struct {
	ingredients, steps, images, publicIDs, tags string
}

func encodeRecipe(r *model.Recipe) (recipeRow, error) {
	var row recipeRow
	var err error
	if row.ingredients, err = encodeList(r.Ingredients); err != nil {
		return row, err
	}
	if row.steps, err = encodeList(r.Steps); err != nil {
		return row, err
	}
	if row.images, err = encodeList(r.Images); err != nil {
		return row, err
	}
	if row.publicIDs, err = encodeList(r.ImagePublicIDs); err != nil {
		return row, err
	}
	if row.tags, err = encodeList(r.Tags); err != nil {
		return row, err
	}
	return row, nil
}

func scanRecipe(s rowScanner) (*model.Recipe, error) {
	var r model.Recipe
	var row recipeRow
	err := s.Scan(
		&r.ID,
		&r.OwnerID,
		&r.Title,
		&r.TitleSlug,
		&r.Description,
		&row.ingredients,
		&row.steps,
		&r.Servings,
		&r.CookTime,
		&row.images,
		&row.publicIDs,
		&row.tags,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Ingredients, err = decodeList[model.Ingredient](row.ingredients); err != nil {
		return nil, err
	}
	if r.Steps, err = decodeList[string](row.steps); err != nil {
		return nil, err
	}
	if r.Images, err = decodeList[string](row.images); err != nil {
		return nil, err
	}
	if r.ImagePublicIDs, err = decodeList[string](row.publicIDs); err != nil {
		return nil, err
	}
	if r.Tags, err = decodeList[string](row.tags); err != nil {
		return nil, err
	}
	r.Groups = []string{}
	return &r, nil
}

// Create inserts a recipe, assigning its ID and timestamps. TitleSlug must
// already be derived by the caller.
func (s *RecipeStore) Create(ctx context.Context, recipe *model.Recipe) error {
	row, err := encodeRecipe(recipe)
	if err != nil {
		return fmt.Errorf("sqlite: creating recipe: %w", err)
	}

	now := time.Now().UTC()
	recipe.ID = xid.New().String()
	recipe.CreatedAt = now
	recipe.UpdatedAt = now
	recipe.Groups = []string{}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO recipes (`+recipeColumns+`, title_fold)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recipe.ID,
		recipe.OwnerID,
		recipe.Title,
		recipe.TitleSlug,
		recipe.Description,
		row.ingredients,
		row.steps,
		recipe.Servings,
		recipe.CookTime,
		row.images,
		row.publicIDs,
		row.tags,
		recipe.CreatedAt,
		recipe.UpdatedAt,
		strings.ToLower(recipe.Title),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("recipe", "title", recipe.Title)
		}
		return fmt.Errorf("sqlite: creating recipe: %w", err)
	}
	return nil
}

// GetByID returns the recipe with its current group backlinks.
// Ownership is checked by the caller.
func (s *RecipeStore) GetByID(ctx context.Context, id string) (*model.Recipe, error) {
	recipe, err := scanRecipe(s.conn.QueryRowContext(ctx,
		`SELECT `+recipeColumns+` FROM recipes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("recipe", id)
		}
		return nil, fmt.Errorf("sqlite: getting recipe %s: %w", id, err)
	}

	groups, err := s.groupsOf(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if g, ok := groups[id]; ok {
		recipe.Groups = g
	}
	return recipe, nil
}

// Update saves every mutable field of recipe and bumps UpdatedAt. The row
// must belong to recipe.OwnerID, otherwise NotFound.
func (s *RecipeStore) Update(ctx context.Context, recipe *model.Recipe) error {
	row, err := encodeRecipe(recipe)
	if err != nil {
		return fmt.Errorf("sqlite: updating recipe %s: %w", recipe.ID, err)
	}
	recipe.UpdatedAt = time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`UPDATE recipes SET
			title = ?, title_slug = ?, title_fold = ?, description = ?,
			ingredients = ?, steps = ?, servings = ?, cook_time = ?,
			images = ?, image_public_ids = ?, tags = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		recipe.Title,
		recipe.TitleSlug,
		strings.ToLower(recipe.Title),
		recipe.Description,
		row.ingredients,
		row.steps,
		recipe.Servings,
		recipe.CookTime,
		row.images,
		row.publicIDs,
		row.tags,
		recipe.UpdatedAt,
		recipe.ID,
		recipe.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("recipe", "title", recipe.Title)
		}
		return fmt.Errorf("sqlite: updating recipe %s: %w", recipe.ID, err)
	}
	return expectOneRow(result, "recipe", recipe.ID)
}

// Delete removes the recipe if ownerID owns it. Group memberships of the
// recipe are removed by the foreign key cascade.
func (s *RecipeStore) Delete(ctx context.Context, ownerID, id string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM recipes WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting recipe %s: %w", id, err)
	}
	return expectOneRow(result, "recipe", id)
}

// List returns one page of matching recipes ordered by title slug (id breaks
// ties between owners) and the total number of matches.
func (s *RecipeStore) List(ctx context.Context, f repository.RecipeFilter) ([]model.Recipe, int, error) {
	var where []string
	var args []any
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Query != "" {
		where = append(where, "instr(title_fold, ?) > 0")
		args = append(args, strings.ToLower(f.Query))
	}
	if f.InGroup != "" {
		where = append(where, "id IN (SELECT recipe_id FROM group_recipes WHERE group_id = ?)")
		args = append(args, f.InGroup)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting recipes: %w", err)
	}
	if total == 0 {
		return []model.Recipe{}, 0, nil
	}

	recipes, err := s.page(ctx, clause, args, f.ListOptions)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]string, len(recipes))
	for i := range recipes {
		ids[i] = recipes[i].ID
	}
	groups, err := s.groupsOf(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range recipes {
		if g, ok := groups[recipes[i].ID]; ok {
			recipes[i].Groups = g
		}
	}

	return recipes, total, nil
}

// page runs the SELECT and closes its rows before returning, so callers can
// issue follow-up queries on a single-connection pool.
func (s *RecipeStore) page(ctx context.Context, clause string, args []any, opts repository.ListOptions) ([]model.Recipe, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+recipeColumns+` FROM recipes`+clause+`
		 ORDER BY title_slug ASC, id ASC
		 LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recipes: %w", err)
	}
	defer rows.Close()

	recipes := make([]model.Recipe, 0, opts.Limit)
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe row: %w", err)
		}
		recipes = append(recipes, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recipe rows: %w", err)
	}
	return recipes, nil
}

// groupsOf maps recipe id → ids of the groups containing it.
func (s *RecipeStore) groupsOf(ctx context.Context, recipeIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(recipeIDs))
	if len(recipeIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(recipeIDs))
	for i, id := range recipeIDs {
		args[i] = id
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT recipe_id, group_id FROM group_recipes
		 WHERE recipe_id IN (`+placeholders(len(args))+`)
		 ORDER BY added_at, group_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading recipe groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recipeID, groupID string
		if err := rows.Scan(&recipeID, &groupID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning recipe group: %w", err)
		}
		out[recipeID] = append(out[recipeID], groupID)
	}
	return out, rows.Err()
}

// SlugTaken reports whether ownerID already has a recipe with slug, other
// than exceptID.
func (s *RecipeStore) SlugTaken(ctx context.Context, ownerID, slug, exceptID string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recipes WHERE owner_id = ? AND title_slug = ? AND id <> ?`,
		ownerID, slug, exceptID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking recipe slug: %w", err)
	}
	return n > 0, nil
}

// ImagePublicIDsByOwner collects the media handles of every recipe owned by
// ownerID, for cleanup before the account is deleted.
func (s *RecipeStore) ImagePublicIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT image_public_ids FROM recipes WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing image ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite: scanning image ids: %w", err)
		}
		list, err := decodeList[string](raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, list...)
	}
	return ids, rows.Err()
}
