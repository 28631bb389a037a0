// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package reconciler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventSource supplies the chain snapshot and the ordered, deduplicated
// event log. Snapshot and events must be consistent as of the same block
// height.
type EventSource interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	Events(ctx context.Context) ([]Event, error)
}

// PriceOracle resolves a token price in the reference display currency at a
// point in time. Failures are non-fatal for callers; the display value is
// simply left unset.
type PriceOracle interface {
	Rate(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error)
}
