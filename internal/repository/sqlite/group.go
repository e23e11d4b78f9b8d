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

var _ repository.GroupRepository = (*GroupStore)(nil)

// GroupStore is the groups table plus the group_recipes membership set.
type GroupStore struct {
	conn *sql.DB
}

// Groups returns the group repository backed by db.
func (db *DB) Groups() *GroupStore {
	return &GroupStore{conn: db.conn}
}

const groupColumns = `id, owner_id, name, name_slug, description, color, icon, created_at, updated_at`

func scanGroup(s rowScanner) (*model.Group, error) {
	var g model.Group
	err := s.Scan(
		&g.ID,
		&g.OwnerID,
		&g.Name,
		&g.NameSlug,
		&g.Description,
		&g.Color,
		&g.Icon,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Recipes = []string{}
	return &g, nil
}

// Create inserts an empty group.
func (s *GroupStore) Create(ctx context.Context, group *model.Group) error {
	now := time.Now().UTC()
	group.ID = xid.New().String()
	group.CreatedAt = now
	group.UpdatedAt = now
	group.Recipes = []string{}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO groups (`+groupColumns+`, name_fold) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID,
		group.OwnerID,
		group.Name,
		group.NameSlug,
		group.Description,
		group.Color,
		group.Icon,
		group.CreatedAt,
		group.UpdatedAt,
		strings.ToLower(group.Name),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("group", "name", group.Name)
		}
		return fmt.Errorf("sqlite: creating group: %w", err)
	}
	return nil
}

// GetByID returns the group with its membership set.
func (s *GroupStore) GetByID(ctx context.Context, id string) (*model.Group, error) {
	group, err := scanGroup(s.conn.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("group", id)
		}
		return nil, fmt.Errorf("sqlite: getting group %s: %w", id, err)
	}

	members, err := s.membersOf(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if m, ok := members[id]; ok {
		group.Recipes = m
	}
	return group, nil
}

// Update saves name, slug, description, color and icon. The membership set
// is only changed through AddRecipe and RemoveRecipe.
func (s *GroupStore) Update(ctx context.Context, group *model.Group) error {
	group.UpdatedAt = time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`UPDATE groups SET name = ?, name_slug = ?, name_fold = ?, description = ?,
			color = ?, icon = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		group.Name,
		group.NameSlug,
		strings.ToLower(group.Name),
		group.Description,
		group.Color,
		group.Icon,
		group.UpdatedAt,
		group.ID,
		group.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("group", "name", group.Name)
		}
		return fmt.Errorf("sqlite: updating group %s: %w", group.ID, err)
	}
	return expectOneRow(result, "group", group.ID)
}

// Delete removes the group and, through the cascade, its membership rows.
// The member recipes themselves are not touched.
func (s *GroupStore) Delete(ctx context.Context, ownerID, id string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM groups WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting group %s: %w", id, err)
	}
	return expectOneRow(result, "group", id)
}

// List returns one page of groups ordered by name slug and the total count.
func (s *GroupStore) List(ctx context.Context, f repository.GroupFilter) ([]model.Group, int, error) {
	var where []string
	var args []any
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Query != "" {
		where = append(where, "instr(name_fold, ?) > 0")
		args = append(args, strings.ToLower(f.Query))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM groups`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting groups: %w", err)
	}
	if total == 0 {
		return []model.Group{}, 0, nil
	}

	groups, err := s.page(ctx, clause, args, f.ListOptions)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]string, len(groups))
	for i := range groups {
		ids[i] = groups[i].ID
	}
	members, err := s.membersOf(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range groups {
		if m, ok := members[groups[i].ID]; ok {
			groups[i].Recipes = m
		}
	}
	return groups, total, nil
}

func (s *GroupStore) page(ctx context.Context, clause string, args []any, opts repository.ListOptions) ([]model.Group, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM groups`+clause+`
		 ORDER BY name_slug ASC, id ASC
		 LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing groups: %w", err)
	}
	defer rows.Close()

	groups := make([]model.Group, 0, opts.Limit)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning group row: %w", err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating group rows: %w", err)
	}
	return groups, nil
}

// membersOf maps group id → member recipe ids in insertion order.
func (s *GroupStore) membersOf(ctx context.Context, groupIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(groupIDs))
	for i, id := range groupIDs {
		args[i] = id
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT group_id, recipe_id FROM group_recipes
		 WHERE group_id IN (`+placeholders(len(args))+`)
		 ORDER BY added_at, recipe_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupID, recipeID string
		if err := rows.Scan(&groupID, &recipeID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning group member: %w", err)
		}
		out[groupID] = append(out[groupID], recipeID)
	}
	return out, rows.Err()
}

// SlugTaken reports whether ownerID already has a group with slug, other
// than exceptID.
func (s *GroupStore) SlugTaken(ctx context.Context, ownerID, slug, exceptID string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM groups WHERE owner_id = ? AND name_slug = ? AND id <> ?`,
		ownerID, slug, exceptID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking group slug: %w", err)
	}
	return n > 0, nil
}

// AddRecipe inserts the pair unless it is already present. The group's
// UpdatedAt moves only when the set changed.
func (s *GroupStore) AddRecipe(ctx context.Context, groupID, recipeID string) (bool, error) {
	return s.changeMembership(ctx, groupID,
		`INSERT OR IGNORE INTO group_recipes (group_id, recipe_id, added_at) VALUES (?, ?, ?)`,
		groupID, recipeID, time.Now().UTC(),
	)
}

// RemoveRecipe deletes the pair if present.
func (s *GroupStore) RemoveRecipe(ctx context.Context, groupID, recipeID string) (bool, error) {
	return s.changeMembership(ctx, groupID,
		`DELETE FROM group_recipes WHERE group_id = ? AND recipe_id = ?`,
		groupID, recipeID,
	)
}

func (s *GroupStore) changeMembership(ctx context.Context, groupID, stmt string, args ...any) (changed bool, err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: beginning membership change: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: changing group %s membership: %w", groupID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	if n > 0 {
		if _, err = tx.ExecContext(ctx,
			`UPDATE groups SET updated_at = ? WHERE id = ?`, time.Now().UTC(), groupID); err != nil {
			return false, fmt.Errorf("sqlite: touching group %s: %w", groupID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: committing membership change: %w", err)
	}
	return n > 0, nil
}
