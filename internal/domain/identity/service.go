package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/medex/medex/internal/platform/auth"
)

// ErrInvalidCredentials is returned when a login fails. The same error is
// used for unknown users and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid username or password")

type Service struct {
	repo     UserRepository
	tokenCfg auth.TokenConfig
}

func NewService(repo UserRepository, tokenCfg auth.TokenConfig) *Service {
	return &Service{repo: repo, tokenCfg: tokenCfg}
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, creds Credentials) (*User, error) {
	if len(creds.Username) < 3 {
		return nil, fmt.Errorf("username must be at least 3 characters")
	}
	if len(creds.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Username:     creds.Username,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies the credentials and issues an access token.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	u, err := s.repo.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := auth.IssueToken(s.tokenCfg, u.ID.String(), u.Username)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokenCfg.TTL.Seconds()),
	}, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// EnsureUser creates the account with the given fixed id if it does not
// exist yet. The development auth bypass needs a real row behind its fixed
// user id so stored extractions satisfy the user foreign key. The account
// gets a random throwaway password; it can never log in with credentials.
func (s *Service) EnsureUser(ctx context.Context, id uuid.UUID, username string) error {
	_, err := s.repo.GetByID(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.repo.Create(ctx, &User{ID: id, Username: username, PasswordHash: string(hash)})
	if errors.Is(err, ErrUsernameTaken) {
		// Lost a race with a concurrent seed.
		return nil
	}
	return err
}
