//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"yappify/auth"
	"yappify/domain"
	"yappify/errors"
	"yappify/repositories"
)

type IAuthService interface {
	Register(name, email, password string) (*domain.User, error)
	Login(email, password string) (string, *domain.User, error)
	SearchUsers(query, callerID string) ([]domain.User, error)
}

// AuthService handles registration and login. It is deliberately thin:
// the membership and message engines only ever see user IDs.
type AuthService struct {
	log    *slog.Logger
	users  repositories.IUserRepository
	tokens *auth.TokenManager
}

func NewAuthService(log *slog.Logger, users repositories.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{log: log, users: users, tokens: tokens}
}

func (s *AuthService) Register(name, email, password string) (*domain.User, error) {
	req := auth.RegisterRequest{Name: name, Email: email, Password: password}
	if err := auth.ValidateRegister(req); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidArgument, err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Avatar:       domain.DefaultAvatar,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(user); err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	s.log.Info("User registered", "userId", user.ID)
	return user, nil
}

// Login verifies credentials and issues a session token. A missing user
// and a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(email, password string) (string, *domain.User, error) {
	user, err := s.users.FindUserByEmail(email)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return "", nil, errors.ErrInvalidCredentials
		}
		return "", nil, err
	}
	ok, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, errors.ErrInvalidCredentials
	}
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) SearchUsers(query, callerID string) ([]domain.User, error) {
	return s.users.SearchUsers(query, callerID)
}
