package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/core/ports"
)

type PartyUseCase struct {
	directory ports.PartyDirectory
}

func NewPartyUseCase(directory ports.PartyDirectory) *PartyUseCase {
	return &PartyUseCase{directory: directory}
}

func (uc *PartyUseCase) ListParties(ctx context.Context) ([]domain.Party, error) {
	parties, err := uc.directory.ListParties(ctx)
	if err != nil {
		return nil, err
	}
	if parties == nil {
		parties = []domain.Party{}
	}
	return parties, nil
}

// ResolvePartyCodes maps short codes to party ids in input order, dropping
// duplicates. Any unknown code fails the whole call with ErrPartyNotFound.
func (uc *PartyUseCase) ResolvePartyCodes(ctx context.Context, codes []string) ([]int64, error) {
	ids := make([]int64, 0, len(codes))
	seen := make(map[int64]struct{}, len(codes))
	for _, code := range codes {
		normalized := domain.NormalizePartyCode(code)
		if normalized == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "resolve party codes", errors.New("party code is empty"))
		}
		party, err := uc.directory.GetPartyByCode(ctx, normalized)
		if err != nil {
			if domain.IsKind(err, domain.ErrPartyNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("resolve party %q: %w", normalized, err)
		}
		if _, ok := seen[party.ID]; ok {
			continue
		}
		seen[party.ID] = struct{}{}
		ids = append(ids, party.ID)
	}
	return ids, nil
}
