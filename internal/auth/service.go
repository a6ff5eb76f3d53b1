package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/user"
)

// UserDirectory is the slice of the user service that authentication needs.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetActor(ctx context.Context, userID int64) (*internal.Actor, error)
}

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	GetActor(ctx context.Context, userID int64) (*internal.Actor, error)
}

// Service performs authentication-related business logic.
type Service struct {
	users          UserDirectory
	tokenGenerator TokenGenerator
}

func NewService(users UserDirectory, tokenGen TokenGenerator) *Service {
	return &Service{
		users:          users,
		tokenGenerator: tokenGen,
	}
}

// Authenticate validates credentials and returns tokens. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return AuthTokens{}, ErrInvalidCredentials
		}
		return AuthTokens{}, err
	}
	if !u.IsActive {
		return AuthTokens{}, ErrUserInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		return AuthTokens{}, ErrInvalidCredentials
	}

	return s.issueTokens(u.ID, u.Email)
}

// RefreshTokens validates a refresh token and returns new tokens.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	// The account may have been deactivated since the token was issued.
	if _, err := s.users.GetActor(ctx, claims.UserID); err != nil {
		return AuthTokens{}, err
	}

	return s.issueTokens(claims.UserID, claims.Email)
}

// ValidateAccessToken validates an access token and returns claims.
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateToken(tokenString)
}

// GetActor loads the full actor identity for validated claims.
func (s *Service) GetActor(ctx context.Context, userID int64) (*internal.Actor, error) {
	return s.users.GetActor(ctx, userID)
}

func (s *Service) issueTokens(userID int64, email string) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(userID, email)
	if err != nil {
		return AuthTokens{}, err
	}
	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(userID, email)
	if err != nil {
		return AuthTokens{}, err
	}
	return AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// HashPassword is used by the seeder and user provisioning.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
