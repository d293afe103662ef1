package core

import (
	"context"
	"errors"
	"time"
)

// CultivationInput describes a crop sown on a field.
type CultivationInput struct {
	CatalogueID string     `json:"b_lu_catalogue"`
	Start       time.Time  `json:"b_lu_start"`
	End         *time.Time `json:"b_lu_end"`
}

// Cultivations lists the cultivations on fieldID.
func (s *Service) Cultivations(ctx context.Context, principalID, fieldID string) ([]Cultivation, error) {
	if _, err := s.authorizeField(ctx, principalID, fieldID, ActionRead); err != nil {
		return nil, err
	}
	return nonNil(s.repo.ListCultivations(ctx, fieldID))
}

// FarmCultivations lists the cultivations on every field of farmID.
func (s *Service) FarmCultivations(ctx context.Context, principalID, farmID string) ([]Cultivation, error) {
	if _, err := s.authorize(ctx, principalID, farmID, ActionRead); err != nil {
		return nil, err
	}
	fields, err := s.repo.ListFields(ctx, farmID)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return []Cultivation{}, nil
	}
	ids := make([]string, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
	}
	return nonNil(s.repo.ListCultivations(ctx, ids...))
}

// AddCultivation sows a catalogue crop on fieldID. Overlapping
// cultivations on one field are allowed.
func (s *Service) AddCultivation(ctx context.Context, principalID, fieldID string, in CultivationInput) (*Cultivation, error) {
	if _, err := s.authorizeField(ctx, principalID, fieldID, ActionWrite); err != nil {
		return nil, err
	}
	if err := checkPeriod("b_lu", in.Start, in.End); err != nil {
		return nil, err
	}

	entry, err := s.repo.GetCultivationCatalogue(ctx, in.CatalogueID)
	if errors.Is(err, ErrNotFound) {
		return nil, invalid("unknown b_lu_catalogue")
	}
	if err != nil {
		return nil, err
	}

	c := Cultivation{
		ID:          s.newID(),
		CatalogueID: entry.ID,
		FieldID:     fieldID,
		Start:       in.Start.UTC(),
		End:         utcPtr(in.End),
		Name:        entry.Name,
		NameEN:      entry.NameEN,
		HCat3:       entry.HCat3,
	}
	if err := s.repo.CreateCultivation(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// RemoveCultivation deletes a cultivation.
func (s *Service) RemoveCultivation(ctx context.Context, principalID, cultivationID string) error {
	c, err := s.repo.GetCultivation(ctx, cultivationID)
	if err != nil {
		return err
	}
	if _, err := s.authorizeField(ctx, principalID, c.FieldID, ActionWrite); err != nil {
		return err
	}
	return s.repo.DeleteCultivation(ctx, cultivationID)
}

// Cultivation returns one cultivation if principalID may read its field.
func (s *Service) Cultivation(ctx context.Context, principalID, cultivationID string) (*Cultivation, error) {
	c, err := s.repo.GetCultivation(ctx, cultivationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeField(ctx, principalID, c.FieldID, ActionRead); err != nil {
		return nil, err
	}
	return c, nil
}

func nonNil[T any](items []T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
