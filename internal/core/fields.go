package core

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/nmi-agro/fdm/pkg/sanitizer"
)

// FieldInput describes a field to add to a farm.
type FieldInput struct {
	Name            string          `json:"b_name"`
	Geometry        string          `json:"b_geometry"`
	SourceID        string          `json:"b_id_source"`
	Start           time.Time       `json:"b_start"`
	End             *time.Time      `json:"b_end"`
	AcquiringMethod AcquiringMethod `json:"b_acquiring_method"`
}

// Fields lists the fields acquired by farmID, sorted by name.
func (s *Service) Fields(ctx context.Context, principalID, farmID string) ([]Field, error) {
	if _, err := s.authorize(ctx, principalID, farmID, ActionRead); err != nil {
		return nil, err
	}
	fields, err := s.repo.ListFields(ctx, farmID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(fields, func(a, b Field) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if fields == nil {
		fields = []Field{}
	}
	return fields, nil
}

// Field returns fieldID if principalID may read its farm.
func (s *Service) Field(ctx context.Context, principalID, fieldID string) (*Field, error) {
	return s.authorizeField(ctx, principalID, fieldID, ActionRead)
}

// AddField adds a field to farmID. Its area is derived from the geometry.
func (s *Service) AddField(ctx context.Context, principalID, farmID string, in FieldInput) (*Field, error) {
	if _, err := s.authorize(ctx, principalID, farmID, ActionWrite); err != nil {
		return nil, err
	}

	name, err := requiredName("b_name", in.Name)
	if err != nil {
		return nil, err
	}
	if err := checkPeriod("b", in.Start, in.End); err != nil {
		return nil, err
	}
	method := in.AcquiringMethod
	if method == "" {
		method = AcquiringUnknown
	}
	if !method.Valid() {
		return nil, invalid("b_acquiring_method must be owner, lease or unknown")
	}
	area, err := FieldArea(in.Geometry)
	if err != nil {
		return nil, err
	}

	f := Field{
		ID:              s.newID(),
		FarmID:          farmID,
		Name:            name,
		Geometry:        in.Geometry,
		SourceID:        sanitizer.Name(in.SourceID, 64),
		Area:            &area,
		Start:           in.Start.UTC(),
		End:             utcPtr(in.End),
		AcquiringMethod: method,
	}
	if err := s.repo.CreateField(ctx, f); err != nil {
		return nil, err
	}
	return &f, nil
}

// RemoveField deletes a field with its cultivations, applications and
// soil analyses.
func (s *Service) RemoveField(ctx context.Context, principalID, fieldID string) error {
	if _, err := s.authorizeField(ctx, principalID, fieldID, ActionWrite); err != nil {
		return err
	}
	return s.repo.DeleteField(ctx, fieldID)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
