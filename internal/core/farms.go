package core

import (
	"context"
	"fmt"

	"github.com/nmi-agro/fdm/pkg/sanitizer"
)

// FarmInput holds the editable attributes of a farm.
type FarmInput struct {
	Name       string `json:"b_name_farm"`
	BusinessID string `json:"b_businessid_farm"`
	Address    string `json:"b_address_farm"`
	PostalCode string `json:"b_postalcode_farm"`
}

func (in FarmInput) farm() (Farm, error) {
	name, err := requiredName("b_name_farm", in.Name)
	if err != nil {
		return Farm{}, err
	}
	return Farm{
		Name:       name,
		BusinessID: sanitizer.Name(in.BusinessID, 32),
		Address:    sanitizer.Name(in.Address, 200),
		PostalCode: sanitizer.Name(in.PostalCode, 16),
	}, nil
}

// Farms lists the farms principalID holds a role on, sorted by name.
// A principal without farms gets an empty slice.
func (s *Service) Farms(ctx context.Context, principalID string) ([]FarmWithRole, error) {
	if principalID == "" {
		return nil, ErrPermissionDenied
	}
	farms, err := s.repo.ListFarms(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if farms == nil {
		farms = []FarmWithRole{}
	}
	return farms, nil
}

// Farm returns farmID as seen by principalID.
func (s *Service) Farm(ctx context.Context, principalID, farmID string) (*FarmWithRole, error) {
	role, err := s.authorize(ctx, principalID, farmID, ActionRead)
	if err != nil {
		return nil, err
	}
	f, err := s.repo.GetFarm(ctx, farmID)
	if err != nil {
		return nil, err
	}
	return &FarmWithRole{Farm: *f, Role: role}, nil
}

// CreateFarm creates a farm owned by principalID.
func (s *Service) CreateFarm(ctx context.Context, principalID string, in FarmInput) (*Farm, error) {
	if principalID == "" {
		return nil, ErrPermissionDenied
	}
	f, err := in.farm()
	if err != nil {
		return nil, err
	}
	f.ID = s.newID()
	f.CreatedAt = s.now().UTC()

	if err := s.repo.CreateFarm(ctx, f, principalID); err != nil {
		return nil, err
	}
	return &f, nil
}

// UpdateFarm replaces the editable attributes of farmID.
func (s *Service) UpdateFarm(ctx context.Context, principalID, farmID string, in FarmInput) (*Farm, error) {
	if _, err := s.authorize(ctx, principalID, farmID, ActionWrite); err != nil {
		return nil, err
	}
	current, err := s.repo.GetFarm(ctx, farmID)
	if err != nil {
		return nil, err
	}
	f, err := in.farm()
	if err != nil {
		return nil, err
	}
	f.ID, f.CreatedAt = current.ID, current.CreatedAt

	if err := s.repo.UpdateFarm(ctx, f); err != nil {
		return nil, err
	}
	return &f, nil
}

// GrantRole gives granteeID a role on farmID. Only owners may share.
func (s *Service) GrantRole(ctx context.Context, principalID, farmID, granteeID string, role Role) error {
	if !role.Valid() {
		return invalid("unknown role")
	}
	if _, err := s.authorize(ctx, principalID, farmID, ActionShare); err != nil {
		return err
	}
	if _, err := s.repo.GetPrincipal(ctx, granteeID); err != nil {
		return err
	}
	return s.repo.GrantRole(ctx, farmID, granteeID, role)
}

// RevokeRole removes granteeID's role on farmID. The last owner cannot be
// removed.
func (s *Service) RevokeRole(ctx context.Context, principalID, farmID, granteeID string) error {
	if _, err := s.authorize(ctx, principalID, farmID, ActionShare); err != nil {
		return err
	}

	role, err := s.repo.GetRole(ctx, farmID, granteeID)
	if err != nil {
		return err
	}
	if role == RoleOwner {
		n, err := s.repo.CountOwners(ctx, farmID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return fmt.Errorf("%w: a farm needs at least one owner", ErrConflict)
		}
	}
	return s.repo.RevokeRole(ctx, farmID, granteeID)
}
