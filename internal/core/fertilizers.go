package core

import (
	"context"
	"errors"
	"time"

	"github.com/nmi-agro/fdm/pkg/sanitizer"
)

// FertilizerInput records a fertilizer acquired by a farm.
type FertilizerInput struct {
	CatalogueID     string    `json:"p_id_catalogue"`
	AcquiringAmount *float64  `json:"p_acquiring_amount"`
	AcquiringDate   time.Time `json:"p_acquiring_date"`
}

// ApplicationInput records a fertilizer dose on a field.
type ApplicationInput struct {
	FertilizerID string    `json:"p_id"`
	Amount       float64   `json:"p_app_amount"`
	Method       string    `json:"p_app_method"`
	Date         time.Time `json:"p_app_date"`
}

// Fertilizers lists the fertilizers acquired by farmID. A farm without
// fertilizers yields an empty slice.
func (s *Service) Fertilizers(ctx context.Context, principalID, farmID string) ([]Fertilizer, error) {
	if _, err := s.authorize(ctx, principalID, farmID, ActionRead); err != nil {
		return nil, err
	}
	return nonNil(s.repo.ListFertilizers(ctx, farmID))
}

// AddFertilizer records a catalogue product acquired by farmID.
func (s *Service) AddFertilizer(ctx context.Context, principalID, farmID string, in FertilizerInput) (*Fertilizer, error) {
	if _, err := s.authorize(ctx, principalID, farmID, ActionWrite); err != nil {
		return nil, err
	}
	if err := nonNegative("p_acquiring_amount", in.AcquiringAmount); err != nil {
		return nil, err
	}
	if in.AcquiringDate.IsZero() {
		return nil, invalid("p_acquiring_date is required")
	}

	entry, err := s.repo.GetFertilizerCatalogue(ctx, in.CatalogueID)
	if errors.Is(err, ErrNotFound) {
		return nil, invalid("unknown p_id_catalogue")
	}
	if err != nil {
		return nil, err
	}

	f := Fertilizer{
		ID:                       s.newID(),
		CatalogueID:              entry.ID,
		FarmID:                   farmID,
		AcquiringAmount:          in.AcquiringAmount,
		AcquiringDate:            in.AcquiringDate.UTC(),
		FertilizerCatalogueEntry: *entry,
	}
	if err := s.repo.CreateFertilizer(ctx, f); err != nil {
		return nil, err
	}
	return &f, nil
}

// RemoveFertilizer deletes a fertilizer and its applications.
func (s *Service) RemoveFertilizer(ctx context.Context, principalID, fertilizerID string) error {
	f, err := s.repo.GetFertilizer(ctx, fertilizerID)
	if err != nil {
		return err
	}
	if _, err := s.authorize(ctx, principalID, f.FarmID, ActionWrite); err != nil {
		return err
	}
	return s.repo.DeleteFertilizer(ctx, fertilizerID)
}

// Applications lists the fertilizer applications on fieldID.
func (s *Service) Applications(ctx context.Context, principalID, fieldID string) ([]FertilizerApplication, error) {
	if _, err := s.authorizeField(ctx, principalID, fieldID, ActionRead); err != nil {
		return nil, err
	}
	return nonNil(s.repo.ListApplications(ctx, fieldID))
}

// AddApplication applies a fertilizer of the field's own farm.
func (s *Service) AddApplication(ctx context.Context, principalID, fieldID string, in ApplicationInput) (*FertilizerApplication, error) {
	field, err := s.authorizeField(ctx, principalID, fieldID, ActionWrite)
	if err != nil {
		return nil, err
	}
	if in.Amount < 0 {
		return nil, invalid("p_app_amount must not be negative")
	}
	if in.Date.IsZero() {
		return nil, invalid("p_app_date is required")
	}

	fert, err := s.repo.GetFertilizer(ctx, in.FertilizerID)
	if errors.Is(err, ErrNotFound) || (err == nil && fert.FarmID != field.FarmID) {
		return nil, invalid("unknown p_id")
	}
	if err != nil {
		return nil, err
	}

	a := FertilizerApplication{
		ID:           s.newID(),
		FieldID:      fieldID,
		FertilizerID: fert.ID,
		Amount:       in.Amount,
		Method:       sanitizer.Name(in.Method, 32),
		Date:         in.Date.UTC(),
		Name:         fert.NameNL,
	}
	if err := s.repo.CreateApplication(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RemoveApplication deletes a fertilizer application.
func (s *Service) RemoveApplication(ctx context.Context, principalID, applicationID string) error {
	a, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if _, err := s.authorizeField(ctx, principalID, a.FieldID, ActionWrite); err != nil {
		return err
	}
	return s.repo.DeleteApplication(ctx, applicationID)
}
