package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nmi-agro/fdm/pkg/id"
	"github.com/nmi-agro/fdm/pkg/logger"
	"github.com/nmi-agro/fdm/pkg/sanitizer"
)

const maxNameRunes = 100

// Service is the authorized entry point to farm data. Every method that
// touches a farm takes the acting principal and checks its role first.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for authorization denials.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces id.New.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New returns a Service backed by repo.
func New(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger.NewNope(),
		now:    time.Now,
		newID:  id.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository exposes the underlying store to packages that manage
// unscoped data such as catalogues.
func (s *Service) Repository() Repository { return s.repo }

// authorize returns the principal's role on farmID when it permits a.
// An unknown farm and a farm without a role look the same to the caller.
func (s *Service) authorize(ctx context.Context, principalID, farmID string, a Action) (Role, error) {
	if principalID == "" || farmID == "" {
		return "", ErrPermissionDenied
	}

	role, err := s.repo.GetRole(ctx, farmID, principalID)
	if errors.Is(err, ErrNotFound) {
		s.logger.WarnContext(ctx, "farm access denied",
			slog.String("principal_id", principalID),
			slog.String("b_id_farm", farmID),
		)
		return "", fmt.Errorf("%w: no role on farm", ErrPermissionDenied)
	}
	if err != nil {
		return "", fmt.Errorf("core: get role: %w", err)
	}
	if !role.Permits(a) {
		return role, fmt.Errorf("%w: role %s", ErrPermissionDenied, role)
	}
	return role, nil
}

// authorizeField loads a field and authorizes a against its farm. A field
// on a farm the principal holds no role on is reported as ErrNotFound, the
// same as a missing one.
func (s *Service) authorizeField(ctx context.Context, principalID, fieldID string, a Action) (*Field, error) {
	f, err := s.repo.GetField(ctx, fieldID)
	if err != nil {
		return nil, err
	}
	role, err := s.authorize(ctx, principalID, f.FarmID, a)
	if err != nil {
		if role == "" && errors.Is(err, ErrPermissionDenied) {
			return nil, fmt.Errorf("%w: field %s", ErrNotFound, fieldID)
		}
		return nil, err
	}
	return f, nil
}

func requiredName(field, value string) (string, error) {
	v := sanitizer.Name(value, maxNameRunes)
	if v == "" {
		return "", invalid(field + " is required")
	}
	return v, nil
}

func checkPeriod(field string, start time.Time, end *time.Time) error {
	if start.IsZero() {
		return invalid(field + "_start is required")
	}
	if end != nil && end.Before(start) {
		return invalid(field + "_end is before " + field + "_start")
	}
	return nil
}

func nonNegative(field string, v *float64) error {
	if v != nil && *v < 0 {
		return invalid(field + " must not be negative")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
