package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
)

// newTestDB opens a fresh migrated in-memory database, closed on cleanup.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: "Test User", PasswordHash: "$2a$04$fakehash"}
	require.NoError(t, db.Users().Create(context.Background(), u))
	return u
}

func TestNew_FileDatabaseReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.db")

	db, err := New(path)
	require.NoError(t, err)
	u := createTestUser(t, db, "ana@example.com")
	require.NoError(t, db.Close())

	// Reopening runs migrations again; already-applied ones are skipped.
	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestForeignKeysEnforced(t *testing.T) {
	db := newTestDB(t)

	err := db.Recipes().Create(context.Background(), &model.Recipe{
		OwnerID:   "no-such-user",
		Title:     "Orphan",
		TitleSlug: "orphan",
		Servings:  1,
		CookTime:  1,
	})
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
