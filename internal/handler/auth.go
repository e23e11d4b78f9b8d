package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/auth"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/service"
)

const oauthStateCookie = "oauth_state"

// GitHubSignIn is the OAuth provider used by the GitHub routes.
// *auth.GitHubProvider implements it.
type GitHubSignIn interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves /auth: password sign-up and sign-in, token refresh
// and the GitHub OAuth flow.
type AuthHandler struct {
	users  *service.UserService
	github GitHubSignIn // nil when GitHub sign-in is not configured
	secure bool         // mark cookies Secure (HTTPS deployments)
	logger *slog.Logger
}

func NewAuthHandler(users *service.UserService, github GitHubSignIn, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, github: github, secure: secure, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,notblank,max=80"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type authResponse struct {
	User         model.PublicUser `json:"user"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken,omitempty"`
}

func toAuthResponse(res *service.AuthResult) authResponse {
	return authResponse{User: res.User, AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}
}

// HandleRegister handles POST /auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.users.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

// HandleLogin handles POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// HandleRefresh handles POST /auth/refresh. Only a new access token is
// returned; the refresh token stays valid until it expires.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// HandleGitHubLogin redirects to GitHub's consent page. A random state value
// goes both into a short-lived HttpOnly cookie and into the redirect URL;
// the callback rejects the request unless the two match (CSRF protection).
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow and answers with the same
// token pair as a password login.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid OAuth state"})
		return
	}

	// one-shot state
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/auth/github",
		MaxAge: -1,
	})

	if denied := r.URL.Query().Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", denied))
		writeError(w, h.logger, apperror.Unauthorized("GitHub authorization was denied"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, auth.ErrNoVerifiedEmail) {
			writeError(w, h.logger, apperror.Unauthorized("GitHub account has no verified email"))
			return
		}
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "bad_gateway", Message: "GitHub sign-in failed"})
		return
	}

	res, err := h.users.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}
