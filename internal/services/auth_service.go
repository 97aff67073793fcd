package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/models"
)

// verifyPassword is swapped in tests to observe bcrypt calls.
var verifyPassword = VerifyPassword

const (
	minNameLength     = 2
	minPasswordLength = 6
)

// UserStore is the part of the credential store the account flows need.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByID(ctx context.Context, id uint) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uint) error
}

type AuthService struct {
	users    UserStore
	tokens   *TokenService
	denylist Denylist
}

func NewAuthService(users UserStore, tokens *TokenService, denylist Denylist) *AuthService {
	return &AuthService{users: users, tokens: tokens, denylist: denylist}
}

func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login returns a bearer token. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (string, error) {
	user, err := s.users.UserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			verifyPassword(req.Password, dummyHash())
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !verifyPassword(req.Password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	return s.tokens.IssueForUser(user.ID)
}

// Logout denylists token until it would have expired.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return err
	}
	exp, err := ExpiresAt(claims)
	if err != nil {
		return err
	}
	return s.denylist.Revoke(ctx, token, exp)
}

// UpdateProfile applies whichever of name, email and password are
// non-empty.
func (s *AuthService) UpdateProfile(ctx context.Context, user *models.User, req *dto.UpdateUserRequest) (*models.User, error) {
	updated := *user

	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		updated.Name = name
	}
	if req.Email != "" {
		email := normalizeEmail(req.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		updated.Email = email
	}
	if req.Password != "" {
		if err := validatePassword(req.Password); err != nil {
			return nil, err
		}
		hash, err := HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		updated.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *AuthService) DeleteAccount(ctx context.Context, user *models.User) error {
	return s.users.DeleteUser(ctx, user.ID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateName(name string) error {
	if len([]rune(name)) < minNameLength {
		return fmt.Errorf("%w: name must be at least %d characters", ErrValidation, minNameLength)
	}
	return nil
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	if len(password) > 72 {
		return fmt.Errorf("%w: password must be at most 72 bytes", ErrValidation)
	}
	return nil
}
