// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"context"

	"github.com/pledger/reconciler/internal/app/reconciler"
)

// DonationStore is the write boundary of the ledger. All mutations are
// idempotent keyed by donation identity.
type DonationStore interface {
	Insert(ctx context.Context, d *reconciler.Donation) (int64, error)
	Update(ctx context.Context, id int64, upd reconciler.DonationUpdate) error
	Delete(ctx context.Context, id int64) error
}

// AdminDirectory resolves persisted admin records by chain id and bootstraps
// giver records on the fly. ByChainID returns (nil, nil) when no record
// exists.
type AdminDirectory interface {
	ByChainID(ctx context.Context, chainID int64) (*reconciler.AdminRecord, error)
	CreateGiver(ctx context.Context, chainID int64, address string) (*reconciler.AdminRecord, error)
}
