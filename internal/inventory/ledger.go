// Package inventory tracks sold quantity per ticket tier and refuses to
// oversell.
package inventory

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
)

// Ledger is the single writer of TicketTier.SoldQuantity.
type Ledger struct {
	store repository.Store
}

// NewLedger constructs a Ledger.
func NewLedger(store repository.Store) *Ledger {
	return &Ledger{store: store}
}

// ReserveCheck reports whether quantity tickets currently fit into the tier.
// It holds nothing: stock is only taken by CommitSale once payment clears.
func (l *Ledger) ReserveCheck(ctx context.Context, tierID string, quantity int) (bool, *model.TicketTier, error) {
	tier, err := l.store.GetTier(ctx, tierID)
	if err != nil {
		return false, nil, err
	}
	return tier.CanSell(quantity), tier, nil
}

// CommitSale increments the tier's sold quantity inside tx. The tier row is
// locked first, so the check and the increment see the same value even when
// several orders for the same tier are issued at once.
func (l *Ledger) CommitSale(ctx context.Context, tx repository.Tx, tierID string, quantity int) (*model.TicketTier, error) {
	tier, err := tx.LockTier(ctx, tierID)
	if err != nil {
		return nil, fmt.Errorf("lock tier: %w", err)
	}
	if !tier.CanSell(quantity) {
		return nil, fmt.Errorf("tier %s has %d left, %d requested: %w",
			tier.Name, tier.Remaining(), quantity, model.ErrInventoryExhausted)
	}
	tier.SoldQuantity += quantity
	if err := tx.SetTierSold(ctx, tier.ID, tier.SoldQuantity); err != nil {
		return nil, err
	}
	return tier, nil
}
