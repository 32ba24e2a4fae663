// File: internal/usecase/account_uc.go
package usecase

import (
	"context"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
)

// Compile-time check
var _ AccountUseCase = (*accountUC)(nil)

// AccountUseCase re-derives balance and grants from server state. There is
// no delta math anywhere: an update event or a resolution always triggers
// a full refetch, so repeated refreshes are harmless.
type AccountUseCase interface {
	RefreshBalance(ctx context.Context, userID string) (model.Balance, error)
	RefreshGrants(ctx context.Context, userID string) ([]model.Grant, error)
	Overview(ctx context.Context, userID string) (model.Balance, []model.Grant, error)
}

type accountUC struct {
	studio    adapter.StudioAdapter
	presenter adapter.Presenter
}

func NewAccountUseCase(studio adapter.StudioAdapter, presenter adapter.Presenter) *accountUC {
	return &accountUC{studio: studio, presenter: presenter}
}

func (a *accountUC) RefreshBalance(ctx context.Context, userID string) (model.Balance, error) {
	b, err := a.studio.Balance(ctx, userID)
	if err != nil {
		return model.Balance{}, err
	}
	a.presenter.BalanceChanged(userID, b)
	return b, nil
}

func (a *accountUC) RefreshGrants(ctx context.Context, userID string) ([]model.Grant, error) {
	gs, err := a.studio.Grants(ctx, userID)
	if err != nil {
		return nil, err
	}
	a.presenter.GrantsChanged(userID, gs)
	return gs, nil
}

func (a *accountUC) Overview(ctx context.Context, userID string) (model.Balance, []model.Grant, error) {
	b, err := a.RefreshBalance(ctx, userID)
	if err != nil {
		return model.Balance{}, nil, err
	}
	gs, err := a.RefreshGrants(ctx, userID)
	if err != nil {
		return b, nil, err
	}
	return b, gs, nil
}
