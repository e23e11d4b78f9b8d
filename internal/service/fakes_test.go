package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/auth"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/repository"
)

// memStore is an in-memory stand-in for the sqlite stores. One value backs
// all three repositories so cascades and membership behave like the real
// schema.
type memStore struct {
	mu      sync.Mutex
	nextID  int
	users   map[string]model.User
	recipes map[string]model.Recipe
	groups  map[string]model.Group
	// members[groupID] is the membership set
	members map[string]map[string]bool
	// failWith, if set, is returned by every call
	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]model.User{},
		recipes: map[string]model.Recipe{},
		groups:  map[string]model.Group{},
		members: map[string]map[string]bool{},
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) Users() *memUsers     { return &memUsers{m} }
func (m *memStore) Recipes() *memRecipes { return &memRecipes{m} }
func (m *memStore) Groups() *memGroups   { return &memGroups{m} }

type memUsers struct{ *memStore }

var _ repository.UserRepository = (*memUsers)(nil)

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperror.Conflict("user", "email", u.Email)
		}
	}
	u.ID = m.id("user")
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *memUsers) Update(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	u.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(m.users, id)
	for rid, r := range m.recipes {
		if r.OwnerID == id {
			m.dropRecipe(rid)
		}
	}
	for gid, g := range m.groups {
		if g.OwnerID == id {
			delete(m.groups, gid)
			delete(m.members, gid)
		}
	}
	return nil
}

func (m *memStore) dropRecipe(id string) {
	delete(m.recipes, id)
	for _, set := range m.members {
		delete(set, id)
	}
}

type memRecipes struct{ *memStore }

var _ repository.RecipeRepository = (*memRecipes)(nil)

func (m *memRecipes) slugTaken(ownerID, slug, exceptID string) bool {
	for _, r := range m.recipes {
		if r.OwnerID == ownerID && r.TitleSlug == slug && r.ID != exceptID {
			return true
		}
	}
	return false
}

func (m *memRecipes) Create(_ context.Context, r *model.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if m.slugTaken(r.OwnerID, r.TitleSlug, "") {
		return apperror.Conflict("recipe", "title", r.Title)
	}
	r.ID = m.id("recipe")
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	r.Groups = []string{}
	m.recipes[r.ID] = *r
	return nil
}

func (m *memRecipes) GetByID(_ context.Context, id string) (*model.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	r, ok := m.recipes[id]
	if !ok {
		return nil, apperror.NotFound("recipe", id)
	}
	r.Groups = m.groupsOf(id)
	return &r, nil
}

func (m *memRecipes) groupsOf(recipeID string) []string {
	groups := []string{}
	for gid, set := range m.members {
		if set[recipeID] {
			groups = append(groups, gid)
		}
	}
	sort.Strings(groups)
	return groups
}

func (m *memRecipes) Update(_ context.Context, r *model.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.recipes[r.ID]
	if !ok || existing.OwnerID != r.OwnerID {
		return apperror.NotFound("recipe", r.ID)
	}
	if m.slugTaken(r.OwnerID, r.TitleSlug, r.ID) {
		return apperror.Conflict("recipe", "title", r.Title)
	}
	r.UpdatedAt = time.Now().UTC()
	m.recipes[r.ID] = *r
	return nil
}

func (m *memRecipes) Delete(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[id]
	if !ok || r.OwnerID != ownerID {
		return apperror.NotFound("recipe", id)
	}
	m.dropRecipe(id)
	return nil
}

func (m *memRecipes) List(_ context.Context, f repository.RecipeFilter) ([]model.Recipe, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, 0, m.failWith
	}
	var matched []model.Recipe
	for _, r := range m.recipes {
		if f.OwnerID != "" && r.OwnerID != f.OwnerID {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(r.Title), strings.ToLower(f.Query)) {
			continue
		}
		if f.InGroup != "" && !m.members[f.InGroup][r.ID] {
			continue
		}
		r.Groups = m.groupsOf(r.ID)
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].TitleSlug != matched[j].TitleSlug {
			return matched[i].TitleSlug < matched[j].TitleSlug
		}
		return matched[i].ID < matched[j].ID
	})
	return window(matched, f.ListOptions), len(matched), nil
}

func (m *memRecipes) SlugTaken(_ context.Context, ownerID, slug, exceptID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	return m.slugTaken(ownerID, slug, exceptID), nil
}

func (m *memRecipes) ImagePublicIDsByOwner(_ context.Context, ownerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var ids []string
	for _, r := range m.recipes {
		if r.OwnerID == ownerID {
			ids = append(ids, r.ImagePublicIDs...)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memGroups struct{ *memStore }

var _ repository.GroupRepository = (*memGroups)(nil)

func (m *memGroups) slugTaken(ownerID, slug, exceptID string) bool {
	for _, g := range m.groups {
		if g.OwnerID == ownerID && g.NameSlug == slug && g.ID != exceptID {
			return true
		}
	}
	return false
}

func (m *memGroups) load(id string) (*model.Group, bool) {
	g, ok := m.groups[id]
	if !ok {
		return nil, false
	}
	g.Recipes = []string{}
	for rid := range m.members[id] {
		g.Recipes = append(g.Recipes, rid)
	}
	sort.Strings(g.Recipes)
	return &g, true
}

func (m *memGroups) Create(_ context.Context, g *model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slugTaken(g.OwnerID, g.NameSlug, "") {
		return apperror.Conflict("group", "name", g.Name)
	}
	g.ID = m.id("group")
	g.CreatedAt = time.Now().UTC()
	g.UpdatedAt = g.CreatedAt
	g.Recipes = []string{}
	m.groups[g.ID] = *g
	m.members[g.ID] = map[string]bool{}
	return nil
}

func (m *memGroups) GetByID(_ context.Context, id string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.load(id)
	if !ok {
		return nil, apperror.NotFound("group", id)
	}
	return g, nil
}

func (m *memGroups) Update(_ context.Context, g *model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.groups[g.ID]
	if !ok || existing.OwnerID != g.OwnerID {
		return apperror.NotFound("group", g.ID)
	}
	if m.slugTaken(g.OwnerID, g.NameSlug, g.ID) {
		return apperror.Conflict("group", "name", g.Name)
	}
	g.UpdatedAt = time.Now().UTC()
	m.groups[g.ID] = *g
	return nil
}

func (m *memGroups) Delete(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok || g.OwnerID != ownerID {
		return apperror.NotFound("group", id)
	}
	delete(m.groups, id)
	delete(m.members, id)
	return nil
}

func (m *memGroups) List(_ context.Context, f repository.GroupFilter) ([]model.Group, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []model.Group
	for id, g := range m.groups {
		if f.OwnerID != "" && g.OwnerID != f.OwnerID {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(f.Query)) {
			continue
		}
		loaded, _ := m.load(id)
		matched = append(matched, *loaded)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].NameSlug < matched[j].NameSlug })
	return window(matched, f.ListOptions), len(matched), nil
}

func (m *memGroups) SlugTaken(_ context.Context, ownerID, slug, exceptID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slugTaken(ownerID, slug, exceptID), nil
}

func (m *memGroups) AddRecipe(_ context.Context, groupID, recipeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.members[groupID]
	if !ok {
		return false, apperror.NotFound("group", groupID)
	}
	if set[recipeID] {
		return false, nil
	}
	set[recipeID] = true
	return true, nil
}

func (m *memGroups) RemoveRecipe(_ context.Context, groupID, recipeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.members[groupID]
	if !ok {
		return false, apperror.NotFound("group", groupID)
	}
	if !set[recipeID] {
		return false, nil
	}
	delete(set, recipeID)
	return true, nil
}

func window[T any](items []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// recordingCleaner remembers every scheduled id.
type recordingCleaner struct {
	mu  sync.Mutex
	ids []string
}

func (c *recordingCleaner) Schedule(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, ids...)
}

func (c *recordingCleaner) scheduled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]string(nil), c.ids...)
	sort.Strings(out)
	return out
}

var errStorageDown = errors.New("storage unavailable")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret-for-tests-0123456789abcdef",
		RefreshSecret: "refresh-secret-for-tests-0123456789abcdef",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return tokens
}

// fixture wires every service against one memStore.
type fixture struct {
	store   *memStore
	cleaner *recordingCleaner
	tokens  *auth.TokenService
	users   *UserService
	recipes *RecipeService
	groups  *GroupService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	policy       ReadPolicy
	allowForeign bool
}

func withReadPolicy(p ReadPolicy) fixtureOption {
	return func(c *fixtureConfig) { c.policy = p }
}

func withoutForeignRecipes() fixtureOption {
	return func(c *fixtureConfig) { c.allowForeign = false }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{policy: ReadOwner, allowForeign: true}
	for _, o := range opts {
		o(&cfg)
	}

	store := newMemStore()
	cleaner := &recordingCleaner{}
	tokens := testTokens(t)
	logger := testLogger()

	return &fixture{
		store:   store,
		cleaner: cleaner,
		tokens:  tokens,
		users:   NewUserService(store.Users(), store.Recipes(), tokens, auth.NewPasswordServiceForTest(4), cleaner, logger),
		recipes: NewRecipeService(store.Recipes(), cleaner, cfg.policy, logger),
		groups:  NewGroupService(store.Groups(), store.Recipes(), cfg.allowForeign, logger),
	}
}

// register creates a user and returns its id.
func (f *fixture) register(t *testing.T, email string) string {
	t.Helper()
	res, err := f.users.Register(context.Background(), email, "correct-horse", "Cook "+email)
	require.NoError(t, err)
	return res.User.ID
}

func recipeInput(title string) RecipeInput {
	return RecipeInput{
		Title:       title,
		Ingredients: []model.Ingredient{{Name: "flour", Quantity: "200", Unit: "g"}},
		Steps:       []string{"mix", "bake"},
		Servings:    2,
		CookTime:    20,
	}
}

func (f *fixture) recipe(t *testing.T, ownerID, title string) *model.Recipe {
	t.Helper()
	r, err := f.recipes.Create(context.Background(), ownerID, recipeInput(title))
	require.NoError(t, err)
	return r
}

func (f *fixture) group(t *testing.T, ownerID, name string) *model.Group {
	t.Helper()
	g, err := f.groups.Create(context.Background(), ownerID, GroupInput{Name: name})
	require.NoError(t, err)
	return g
}
