package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/cryptox"
	"github.com/dmitrijs2005/tasksync/internal/server/auth"
	"github.com/dmitrijs2005/tasksync/internal/server/config"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// IssuedToken is returned once at issue time; the signed token is not
// stored and cannot be recovered later.
type IssuedToken struct {
	AccountID string
	TokenID   string
	Token     string
	ExpiresAt *time.Time
}

// AuthService resolves bearer tokens to accounts and manages token rows.
type AuthService struct {
	repomanager repomanager.RepositoryManager
	jwtSecret   []byte
	validity    time.Duration
	now         func() time.Time
}

func NewAuthService(m repomanager.RepositoryManager, cfg *config.Config) *AuthService {
	return &AuthService{
		repomanager: m,
		jwtSecret:   []byte(cfg.SecretKey),
		validity:    cfg.TokenValidityDuration,
		now:         time.Now,
	}
}

// Authenticate maps a bearer token to its account id. It only reads: the
// signature and expiry are checked, then the token row is looked up and its
// digest compared in constant time. Every failure is reported as
// common.ErrorUnauthorized, except storage failures which are
// common.ErrorInternal; both fail closed.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", common.ErrorUnauthorized
	}

	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}

	row, err := s.repomanager.Repos().Tokens.GetByID(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if row.AccountID != claims.AccountID ||
		!cryptox.DigestEqual(row.Digest, cryptox.TokenDigest(token)) ||
		!row.Active(s.now()) {
		return "", common.ErrorUnauthorized
	}

	return row.AccountID, nil
}

// IssueToken creates the account if needed and mints a new token for it.
func (s *AuthService) IssueToken(ctx context.Context, accountName string) (*IssuedToken, error) {
	if accountName == "" {
		return nil, fmt.Errorf("account name is required")
	}

	var issued *IssuedToken
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		account, err := r.Accounts.GetOrCreate(ctx, uuid.NewString(), accountName)
		if err != nil {
			return fmt.Errorf("error creating account: %w", err)
		}

		tokenID := uuid.NewString()
		signed, err := auth.GenerateToken(account.ID, tokenID, s.jwtSecret, s.validity)
		if err != nil {
			return fmt.Errorf("error signing token: %w", err)
		}

		row := &models.Token{
			ID:        tokenID,
			AccountID: account.ID,
			Digest:    cryptox.TokenDigest(signed),
		}
		if s.validity > 0 {
			exp := s.now().Add(s.validity)
			row.ExpiresAt = &exp
		}
		if err := r.Tokens.Create(ctx, row); err != nil {
			return fmt.Errorf("error storing token: %w", err)
		}

		issued = &IssuedToken{AccountID: account.ID, TokenID: tokenID, Token: signed, ExpiresAt: row.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// RevokeToken disables a token immediately.
func (s *AuthService) RevokeToken(ctx context.Context, tokenID string) error {
	if err := s.repomanager.Repos().Tokens.Revoke(ctx, tokenID, s.now()); err != nil {
		return fmt.Errorf("error revoking token %s: %w", tokenID, err)
	}
	return nil
}
