package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/terra-clan/office-hub/internal/models"
	"github.com/terra-clan/office-hub/internal/storage"
)

// PermissionSource maps a role to the permissions it grants
type PermissionSource interface {
	Permissions(role models.Role) []string
}

// Service authenticates users and callers
type Service struct {
	users       storage.UserStore
	issuer      *Issuer
	revocations RevocationStore
	permissions PermissionSource
}

// NewService creates an auth service
func NewService(users storage.UserStore, issuer *Issuer, revocations RevocationStore, permissions PermissionSource) *Service {
	return &Service{
		users:       users,
		issuer:      issuer,
		revocations: revocations,
		permissions: permissions,
	}
}

// Login exchanges credentials for an access and a refresh token
func (s *Service) Login(ctx context.Context, req models.TokenRequest) (*models.TokenPair, error) {
	user, err := s.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	access, err := s.issuer.Issue(user, AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.Issue(user, RefreshToken)
	if err != nil {
		return nil, err
	}

	slog.Info("user signed in", "user_id", user.ID, "username", user.Username)
	return &models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh issues a new access token for a valid refresh token
func (s *Service) Refresh(ctx context.Context, refresh string) (*models.TokenPair, error) {
	claims, err := s.verify(ctx, refresh, RefreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.Issue(user, AccessToken)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{Access: access}, nil
}

// Authenticate turns an access token into a Principal
func (s *Service) Authenticate(ctx context.Context, access string) (*models.Principal, error) {
	claims, err := s.verify(ctx, access, AccessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	return &models.Principal{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		Permissions: s.permissions.Permissions(user.Role),
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Anonymous returns the principal used for requests without a token
func (s *Service) Anonymous() *models.Principal {
	return &models.Principal{
		Role:        models.RoleAnonymous,
		Permissions: s.permissions.Permissions(models.RoleAnonymous),
	}
}

// SignOut revokes the caller's access token and, when given, a refresh token
func (s *Service) SignOut(ctx context.Context, p *models.Principal, refresh string) error {
	if err := s.revocations.Revoke(ctx, p.TokenID, p.ExpiresAt); err != nil {
		return err
	}

	if refresh != "" {
		claims, err := s.issuer.Parse(refresh, RefreshToken)
		if err == nil && claims.Subject == strconv.FormatInt(p.UserID, 10) {
			if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				return err
			}
		}
	}

	slog.Info("user signed out", "user_id", p.UserID)
	return nil
}

func (s *Service) verify(ctx context.Context, token string, typ TokenType) (*Claims, error) {
	claims, err := s.issuer.Parse(token, typ)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (s *Service) activeUser(ctx context.Context, claims *Claims) (*models.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return user, nil
}
