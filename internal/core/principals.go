package core

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"time"

	"github.com/nmi-agro/fdm/pkg/sanitizer"
)

// Identity is a verified sign-in: an email address, optionally vouched for
// by an OAuth provider.
type Identity struct {
	Email          string
	Name           string
	Image          string
	Provider       string
	ProviderUserID string
}

// Principal returns a principal by id.
func (s *Service) Principal(ctx context.Context, principalID string) (*Principal, error) {
	if principalID == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetPrincipal(ctx, principalID)
}

// SignIn resolves id to a principal, creating one on first sign-in.
// A provider account is matched first, then the email address; a new
// provider account is linked to the principal it resolved to.
func (s *Service) SignIn(ctx context.Context, id Identity) (*Principal, error) {
	email := normalizeEmail(id.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalid("a valid email address is required")
	}

	var p *Principal
	if id.Provider != "" {
		acc, err := s.repo.GetAccount(ctx, id.Provider, id.ProviderUserID)
		switch {
		case err == nil:
			if p, err = s.repo.GetPrincipal(ctx, acc.PrincipalID); err != nil {
				return nil, err
			}
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	if p == nil {
		found, err := s.repo.GetPrincipalByEmail(ctx, email)
		switch {
		case err == nil:
			p = found
		case errors.Is(err, ErrNotFound):
			p, err = s.createPrincipal(ctx, email, id)
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}

		if id.Provider != "" {
			if err := s.repo.LinkAccount(ctx, Account{
				Provider:       id.Provider,
				ProviderUserID: id.ProviderUserID,
				PrincipalID:    p.ID,
				CreatedAt:      s.now().UTC(),
			}); err != nil {
				return nil, err
			}
		}
	}

	// Fill in a missing name or avatar from the provider.
	if (p.Name == "" && id.Name != "") || (p.Image == "" && id.Image != "") {
		if p.Name == "" {
			p.Name = sanitizer.Name(id.Name, maxNameRunes)
		}
		if p.Image == "" {
			p.Image = id.Image
		}
		if err := s.repo.UpdatePrincipal(ctx, *p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *Service) createPrincipal(ctx context.Context, email string, id Identity) (*Principal, error) {
	p := Principal{
		ID:        s.newID(),
		Email:     email,
		Name:      sanitizer.Name(id.Name, maxNameRunes),
		Image:     id.Image,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreatePrincipal(ctx, p); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "principal created", slog.String("principal_id", p.ID))
	return &p, nil
}

// StartVerification stores a pending magic-link sign-in for email.
func (s *Service) StartVerification(ctx context.Context, email, tokenHash, redirectTo string, ttl time.Duration) error {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return invalid("a valid email address is required")
	}
	now := s.now().UTC()
	return s.repo.CreateVerification(ctx, Verification{
		TokenHash:  tokenHash,
		Email:      email,
		RedirectTo: redirectTo,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	})
}

// CompleteVerification consumes a magic-link token and signs its email
// in. A token works once.
func (s *Service) CompleteVerification(ctx context.Context, tokenHash string) (*Principal, *Verification, error) {
	v, err := s.repo.ConsumeVerification(ctx, tokenHash, s.now())
	if err != nil {
		return nil, nil, err
	}
	p, err := s.SignIn(ctx, Identity{Email: v.Email})
	if err != nil {
		return nil, nil, err
	}
	return p, v, nil
}
