package core

import (
	"context"
	"time"

	"github.com/nmi-agro/fdm/pkg/sanitizer"
)

// SoilAnalysisInput holds lab results for a field sample.
type SoilAnalysisInput struct {
	SamplingDate time.Time `json:"b_sampling_date"`
	Source       string    `json:"a_source"`
	SomLoi       *float64  `json:"a_som_loi"`
	PAl          *float64  `json:"a_p_al"`
	PCc          *float64  `json:"a_p_cc"`
	PhCc         *float64  `json:"a_ph_cc"`
	SoilType     string    `json:"b_soiltype_agr"`
	// Document is the storage key of an uploaded lab report.
	Document string `json:"-"`
}

// SoilAnalyses lists the soil analyses of fieldID.
func (s *Service) SoilAnalyses(ctx context.Context, principalID, fieldID string) ([]SoilAnalysis, error) {
	if _, err := s.authorizeField(ctx, principalID, fieldID, ActionRead); err != nil {
		return nil, err
	}
	return nonNil(s.repo.ListSoilAnalyses(ctx, fieldID))
}

// SoilAnalysis returns one analysis if principalID may read its field.
func (s *Service) SoilAnalysis(ctx context.Context, principalID, analysisID string) (*SoilAnalysis, error) {
	a, err := s.repo.GetSoilAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeField(ctx, principalID, a.FieldID, ActionRead); err != nil {
		return nil, err
	}
	return a, nil
}

// AddSoilAnalysis stores lab results for fieldID.
func (s *Service) AddSoilAnalysis(ctx context.Context, principalID, fieldID string, in SoilAnalysisInput) (*SoilAnalysis, error) {
	if _, err := s.authorizeField(ctx, principalID, fieldID, ActionWrite); err != nil {
		return nil, err
	}
	if in.SamplingDate.IsZero() {
		return nil, invalid("b_sampling_date is required")
	}
	for name, v := range map[string]*float64{"a_som_loi": in.SomLoi, "a_p_al": in.PAl, "a_p_cc": in.PCc} {
		if err := nonNegative(name, v); err != nil {
			return nil, err
		}
	}
	if in.PhCc != nil && (*in.PhCc < 0 || *in.PhCc > 14) {
		return nil, invalid("a_ph_cc must be between 0 and 14")
	}

	a := SoilAnalysis{
		ID:           s.newID(),
		FieldID:      fieldID,
		SamplingDate: in.SamplingDate.UTC(),
		Source:       sanitizer.Name(in.Source, 64),
		SomLoi:       in.SomLoi,
		PAl:          in.PAl,
		PCc:          in.PCc,
		PhCc:         in.PhCc,
		SoilType:     sanitizer.Name(in.SoilType, 32),
		Document:     in.Document,
	}
	if err := s.repo.CreateSoilAnalysis(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RemoveSoilAnalysis deletes an analysis and returns it, so the caller can
// drop the attached document.
func (s *Service) RemoveSoilAnalysis(ctx context.Context, principalID, analysisID string) (*SoilAnalysis, error) {
	a, err := s.repo.GetSoilAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeField(ctx, principalID, a.FieldID, ActionWrite); err != nil {
		return nil, err
	}
	if err := s.repo.DeleteSoilAnalysis(ctx, analysisID); err != nil {
		return nil, err
	}
	return a, nil
}
