package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/auth"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/handler"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/media"
	sqliteRepo "github.com/carlosfernandezdev/backend-recipeapp/internal/repository/sqlite"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/service"
)

type fakeSigner struct{ err error }

func (f fakeSigner) PresignUpload(_ context.Context, ownerID string) (*media.Upload, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := "recipes/" + ownerID + "/fixed"
	return &media.Upload{
		PublicID:  key,
		UploadURL: "https://bucket.example/" + key + "?sig=1",
		URL:       "https://cdn.example/" + key,
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (f fakeGitHub) AuthURL(state string) string {
	return "https://github.example/login/oauth/authorize?state=" + state
}

func (f fakeGitHub) Exchange(context.Context, string) (*auth.GitHubUser, error) {
	return f.user, f.err
}

type testAPI struct {
	router http.Handler
	tokens *auth.TokenService
}

type apiOptions struct {
	policy service.ReadPolicy
	github handler.GitHubSignIn
}

// newTestAPI wires the real services over an in-memory database and mounts
// the handlers the same way the server does.
func newTestAPI(t *testing.T, opts apiOptions) *testAPI {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "handler-access-secret-0123456789abcdef",
		RefreshSecret: "handler-refresh-secret-0123456789abcdef",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)

	users := service.NewUserService(db.Users(), db.Recipes(), tokens, auth.NewPasswordServiceForTest(4), nil, logger)
	recipes := service.NewRecipeService(db.Recipes(), nil, opts.policy, logger)
	groups := service.NewGroupService(db.Groups(), db.Recipes(), true, logger)

	authH := handler.NewAuthHandler(users, opts.github, false, logger)
	userH := handler.NewUserHandler(users, logger)
	recipeH := handler.NewRecipeHandler(recipes, logger)
	groupH := handler.NewGroupHandler(groups, logger)
	uploadH := handler.NewUploadHandler(fakeSigner{}, logger)
	healthH := handler.NewHealthHandler(db, "test", logger)

	r := chi.NewRouter()
	r.NotFound(healthH.HandleNotFound)
	r.MethodNotAllowed(healthH.HandleMethodNotAllowed)
	r.Get("/", healthH.HandleRoot)
	r.Get("/health", healthH.HandleHealth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authH.HandleRegister)
		r.Post("/login", authH.HandleLogin)
		r.Post("/refresh", authH.HandleRefresh)
		if opts.github != nil {
			r.Get("/github/login", authH.HandleGitHubLogin)
			r.Get("/github/callback", authH.HandleGitHubCallback)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/users/me", userH.HandleGetMe)
		r.Patch("/users/me", userH.HandleUpdateMe)
		r.Delete("/users/me", userH.HandleDeleteMe)

		r.Get("/recipes", recipeH.HandleList)
		r.Post("/recipes", recipeH.HandleCreate)
		r.Get("/recipes/{id}", recipeH.HandleGet)
		r.Patch("/recipes/{id}", recipeH.HandleUpdate)
		r.Delete("/recipes/{id}", recipeH.HandleDelete)

		r.Get("/groups", groupH.HandleList)
		r.Post("/groups", groupH.HandleCreate)
		r.Get("/groups/{id}", groupH.HandleGet)
		r.Patch("/groups/{id}", groupH.HandleUpdate)
		r.Delete("/groups/{id}", groupH.HandleDelete)
		r.Get("/groups/{groupId}/recipes", groupH.HandleListRecipes)
		r.Post("/groups/{groupId}/recipes/{id}", groupH.HandleAddRecipe)
		r.Delete("/groups/{groupId}/recipes/{id}", groupH.HandleRemoveRecipe)

		r.Get("/api/upload/signature", uploadH.HandleSignature)
	})

	return &testAPI{router: r, tokens: tokens}
}

// do sends a request with an optional JSON body and bearer token.
func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

type session struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a *testAPI) register(t *testing.T, email string) session {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": "correct-horse", "name": "Cook",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var s session
	decode(t, rr, &s)
	return s
}

func validRecipe(title string) map[string]any {
	return map[string]any{
		"title":       title,
		"ingredients": []map[string]string{{"name": "spaghetti", "quantity": "200", "unit": "g"}},
		"steps":       []string{"boil water", "cook pasta"},
		"servings":    2,
		"cookTime":    20,
	}
}

type recipeBody struct {
	ID        string   `json:"id"`
	Owner     string   `json:"owner"`
	Title     string   `json:"title"`
	TitleSlug string   `json:"titleSlug"`
	Groups    []string `json:"groups"`
}

type groupBody struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	NameSlug string   `json:"nameSlug"`
	Recipes  []string `json:"recipes"`
}

type pageBody[T any] struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Items []T `json:"items"`
}

func (a *testAPI) createRecipe(t *testing.T, token, title string) recipeBody {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/recipes", token, validRecipe(title))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out struct {
		Recipe recipeBody `json:"recipe"`
	}
	decode(t, rr, &out)
	return out.Recipe
}

func (a *testAPI) createGroup(t *testing.T, token, name string) groupBody {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/groups", token, map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var out struct {
		Group groupBody `json:"group"`
	}
	decode(t, rr, &out)
	return out.Group
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(dst), "body: %s", rr.Body.String())
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var e handler.ErrorResponse
	decode(t, rr, &e)
	return e
}
