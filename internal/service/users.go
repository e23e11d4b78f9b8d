package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/auth"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/repository"
)

const (
	MinPasswordLength = 8
	MaxUserNameLength = 80
	MaxBioLength      = 280
)

// errBadCredentials is shared by every login failure so responses for an
// unknown email and a wrong password are byte-identical.
var errBadCredentials = apperror.Unauthorized("invalid email or password")

// UserService is the user directory: accounts, credentials and sessions.
type UserService struct {
	users     repository.UserRepository
	recipes   repository.RecipeRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	cleaner   MediaCleaner
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	recipes repository.RecipeRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	cleaner MediaCleaner,
	logger *slog.Logger,
) *UserService {
	if cleaner == nil {
		cleaner = NopCleaner{}
	}
	return &UserService{
		users:     users,
		recipes:   recipes,
		tokens:    tokens,
		passwords: passwords,
		cleaner:   cleaner,
		logger:    logger,
	}
}

// AuthResult is what register, login and refresh hand back to the client.
// RefreshToken is empty after a refresh: refresh tokens are not rotated.
type AuthResult struct {
	User         model.PublicUser
	AccessToken  string
	RefreshToken string
}

// ProfilePatch carries the optional profile fields; nil means unchanged.
type ProfilePatch struct {
	Name *string
	Bio  *string
}

// NormalizeEmail is the canonical form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs the user in.
func (s *UserService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)

	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := validateUserName(name); err != nil {
		return nil, err
	}

	// fast path for the common duplicate; the unique index still decides races
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("user", "email", email)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{Email: email, Name: name, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return s.signIn(user)
}

// Login checks credentials. Every failure is the same Unauthorized error.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.VerifyNone(password)
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	// accounts created through GitHub have no password
	if user.PasswordHash == "" {
		s.passwords.VerifyNone(password)
		return nil, errBadCredentials
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Debug("login rejected", slog.String("userID", user.ID))
		return nil, errBadCredentials
	}

	return s.signIn(user)
}

// Refresh trades a refresh token for a new access token. The token is
// rejected once the account is gone or its email changed.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperror.Unauthorized("invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid or expired refresh token")
		}
		return nil, fmt.Errorf("loading user %s: %w", claims.Subject, err)
	}
	if user.Email != claims.Email {
		return nil, apperror.Unauthorized("invalid or expired refresh token")
	}

	access, err := s.tokens.IssueAccess(auth.Claims{Subject: user.ID, Email: user.Email})
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	return &AuthResult{User: model.ToPublic(user), AccessToken: access}, nil
}

// LoginWithGitHub signs in the account whose email matches the GitHub
// account's verified email, creating a password-less account on first use.
func (s *UserService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("GitHub user must not be nil")
	}
	email := NormalizeEmail(gh.Email)
	if email == "" {
		return nil, apperror.Unauthorized("GitHub account has no verified email")
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		name := strings.TrimSpace(gh.Name)
		if name == "" {
			name = gh.Login
		}
		if utf8.RuneCountInString(name) > MaxUserNameLength {
			name = string([]rune(name)[:MaxUserNameLength])
		}
		user = &model.User{Email: email, Name: name}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("user registered via GitHub",
			slog.String("userID", user.ID),
			slog.String("login", gh.Login),
		)
	default:
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	return s.signIn(user)
}

// GetProfile returns the caller's public profile.
func (s *UserService) GetProfile(ctx context.Context, id string) (model.PublicUser, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, err
	}
	return model.ToPublic(user), nil
}

// UpdateProfile changes name and/or bio.
func (s *UserService) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (model.PublicUser, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := validateUserName(name); err != nil {
			return model.PublicUser{}, err
		}
		user.Name = name
	}
	if patch.Bio != nil {
		bio := strings.TrimSpace(*patch.Bio)
		if utf8.RuneCountInString(bio) > MaxBioLength {
			return model.PublicUser{}, apperror.ValidationFailed("bio",
				fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
		}
		user.Bio = bio
	}

	if err := s.users.Update(ctx, user); err != nil {
		return model.PublicUser{}, err
	}
	return model.ToPublic(user), nil
}

// DeleteAccount removes the user with all their recipes, groups and
// memberships, then schedules cleanup of the recipes' media.
func (s *UserService) DeleteAccount(ctx context.Context, id string) error {
	stored, err := s.recipes.ImagePublicIDsByOwner(ctx, id)
	if err != nil {
		return fmt.Errorf("collecting media of user %s: %w", id, err)
	}
	publicIDs := ownedMedia(id, stored)
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	s.cleaner.Schedule(publicIDs...)
	s.logger.Info("account deleted",
		slog.String("userID", id),
		slog.Int("mediaScheduled", len(publicIDs)),
	)
	return nil
}

func (s *UserService) signIn(user *model.User) (*AuthResult, error) {
	claims := auth.Claims{Subject: user.ID, Email: user.Email}

	access, err := s.tokens.IssueAccess(claims)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(claims)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}
	return &AuthResult{User: model.ToPublic(user), AccessToken: access, RefreshToken: refresh}, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}

func validateUserName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "name is required")
	}
	if utf8.RuneCountInString(name) > MaxUserNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxUserNameLength))
	}
	return nil
}
