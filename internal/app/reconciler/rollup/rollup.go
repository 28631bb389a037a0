// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package rollup

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/app/reconciler"
	"github.com/pledger/reconciler/observability"
)

// Counter is a per-token cumulative balance of an entity.
type Counter struct {
	Symbol         string
	Name           string
	Address        string
	Decimals       int
	TotalDonated   decimal.Decimal
	CurrentBalance decimal.Decimal
	DonationCount  int
}

// Entity is a community, campaign or trace whose counters the rollup
// recomputes from the repaired ledger.
type Entity struct {
	ID           int64
	Kind         reconciler.AdminKind
	TypeID       string
	Canceled     bool
	TokenAddress string
	MaxAmount    decimal.Decimal
	FullyFunded  bool
	PeopleCount  int
	Counters     []Counter
}

// Store is the entity persistence boundary.
type Store interface {
	Entities(ctx context.Context) ([]*Entity, error)
	UpdateCounters(ctx context.Context, entityID int64, counters []Counter) error
	UpdateEntity(ctx context.Context, entityID int64, fullyFunded bool, peopleCount int) error
}

// Rollup recomputes entity counters from the repaired in-memory ledger and
// writes back only the aggregates that drifted.
type Rollup struct {
	log    *logrus.Logger
	store  Store
	tokens *reconciler.TokenRegistry
	stat   *reconciler.Statistic
	fix    bool
}

func NewRollup(
	obs *observability.Observability,
	store Store,
	tokens *reconciler.TokenRegistry,
	stat *reconciler.Statistic,
	fix bool,
) *Rollup {
	return &Rollup{
		log:    obs.Log(),
		store:  store,
		tokens: tokens,
		stat:   stat,
		fix:    fix,
	}
}

func (r *Rollup) Run(ctx context.Context, donations []*reconciler.Donation) error {
	entities, err := r.store.Entities(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load entities")
	}

	var returns []*reconciler.Donation
	for _, d := range donations {
		if d.IsReturn && d.Mined {
			returns = append(returns, d)
		}
	}

	for _, entity := range entities {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.syncEntity(ctx, entity, donations, returns); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rollup) syncEntity(
	ctx context.Context,
	entity *Entity,
	donations []*reconciler.Donation,
	returns []*reconciler.Donation,
) error {
	qualified := qualify(entity, donations)
	counters := r.counters(entity, qualified, returns)

	changed := countersDiffer(entity.Counters, counters)
	if changed {
		r.logCounterDiff(entity, counters)
	}

	fullyFunded := r.fullyFunded(entity, counters)
	peopleCount := distinctGivers(qualified)

	entityChanged := false
	if fullyFunded != entity.FullyFunded {
		r.log.WithFields(logrus.Fields{
			"entity":      entity.ID,
			"kind":        entity.Kind,
			"fullyFunded": fullyFunded,
		}).Info("entity funded state drifted")
		entityChanged = true
	}
	if peopleCount != entity.PeopleCount {
		r.log.WithFields(logrus.Fields{
			"entity": entity.ID,
			"kind":   entity.Kind,
			"old":    entity.PeopleCount,
			"new":    peopleCount,
		}).Info("entity people count drifted")
		entityChanged = true
	}

	if !changed && !entityChanged {
		return nil
	}
	r.stat.UpdatedEntities++
	if !r.fix {
		return nil
	}
	if changed {
		if err := r.store.UpdateCounters(ctx, entity.ID, counters); err != nil {
			return errors.Wrapf(err, "failed to update counters of entity %d", entity.ID)
		}
	}
	if entityChanged {
		if err := r.store.UpdateEntity(ctx, entity.ID, fullyFunded, peopleCount); err != nil {
			return errors.Wrapf(err, "failed to update entity %d", entity.ID)
		}
	}
	return nil
}

// qualify picks the donations that count toward an entity's aggregates.
// Failed donations and money already leaving the system are excluded.
func qualify(entity *Entity, donations []*reconciler.Donation) []*reconciler.Donation {
	var out []*reconciler.Donation
	for _, d := range donations {
		if !d.Mined {
			continue
		}
		switch d.Status {
		case reconciler.StatusFailed, reconciler.StatusPaying, reconciler.StatusPaid:
			continue
		}
		switch entity.Kind {
		case reconciler.KindCommunity:
			if d.DelegateKind != reconciler.KindCommunity || d.DelegateTypeID != entity.TypeID {
				continue
			}
			if d.IntendedProjectID != 0 {
				continue
			}
			if len(d.ParentDonations) == 0 && d.AmountRemaining.IsZero() {
				continue
			}
		case reconciler.KindCampaign, reconciler.KindTrace:
			if d.OwnerKind != entity.Kind || d.OwnerTypeID != entity.TypeID {
				continue
			}
		default:
			continue
		}
		out = append(out, d)
	}
	return out
}

func (r *Rollup) counters(
	entity *Entity,
	qualified []*reconciler.Donation,
	returns []*reconciler.Donation,
) []Counter {
	ids := make(map[int64]struct{}, len(qualified))
	for _, d := range qualified {
		if d.ID != 0 {
			ids[d.ID] = struct{}{}
		}
	}

	grouped := make(map[string][]*reconciler.Donation)
	for _, d := range qualified {
		symbol := r.tokens.SymbolByAddress(d.TokenAddress)
		grouped[symbol] = append(grouped[symbol], d)
	}
	groupedReturns := make(map[string][]*reconciler.Donation)
	for _, d := range returns {
		if !parentIn(d.ParentDonations, ids) {
			continue
		}
		symbol := r.tokens.SymbolByAddress(d.TokenAddress)
		groupedReturns[symbol] = append(groupedReturns[symbol], d)
	}

	counters := make([]Counter, 0, len(grouped))
	for symbol, group := range grouped {
		totalDonated := decimal.Zero
		currentBalance := decimal.Zero
		donationCount := 0
		tokenAddress := ""
		for _, d := range group {
			if !d.IsReturn {
				totalDonated = totalDonated.Add(d.Amount)
				donationCount++
			}
			currentBalance = currentBalance.Add(d.AmountRemaining)
			if tokenAddress == "" {
				tokenAddress = d.TokenAddress
			}
		}
		// Returned money reduces the total unless the entity itself was
		// canceled and the returns are its own refunds.
		if !entity.Canceled {
			for _, d := range groupedReturns[symbol] {
				totalDonated = totalDonated.Sub(d.Amount)
			}
		}

		c := Counter{
			Symbol:         symbol,
			Name:           symbol,
			Address:        tokenAddress,
			Decimals:       18,
			TotalDonated:   totalDonated,
			CurrentBalance: currentBalance,
			DonationCount:  donationCount,
		}
		if token, ok := r.tokens.ByAddress(tokenAddress); ok {
			c.Name = token.Name
			c.Address = token.Address
			c.Decimals = token.Decimals
		}
		counters = append(counters, c)
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].Symbol < counters[j].Symbol })
	return counters
}

// fullyFunded applies to traces with a concrete token and a max amount: the
// trace is funded once the shortfall drops below the token's negligibility
// cutoff.
func (r *Rollup) fullyFunded(entity *Entity, counters []Counter) bool {
	if entity.Kind != reconciler.KindTrace || len(counters) == 0 {
		return false
	}
	token, ok := r.tokens.ByAddress(entity.TokenAddress)
	if !ok || token.ForeignAddress == reconciler.AnyToken.ForeignAddress {
		return false
	}
	if entity.MaxAmount.IsZero() {
		return false
	}
	cutoff, ok := r.tokens.Cutoff(token.Symbol)
	if !ok {
		return false
	}
	for i := range counters {
		if counters[i].Symbol == token.Symbol {
			return entity.MaxAmount.Sub(counters[i].TotalDonated).LessThan(cutoff)
		}
	}
	return false
}

func countersDiffer(old, fresh []Counter) bool {
	if len(old) != len(fresh) {
		return true
	}
	bySymbol := make(map[string]Counter, len(old))
	for _, c := range old {
		bySymbol[c.Symbol] = c
	}
	for _, c := range fresh {
		prev, ok := bySymbol[c.Symbol]
		if !ok {
			return true
		}
		if !prev.TotalDonated.Equal(c.TotalDonated) ||
			!prev.CurrentBalance.Equal(c.CurrentBalance) ||
			prev.DonationCount != c.DonationCount {
			return true
		}
	}
	return false
}

func distinctGivers(donations []*reconciler.Donation) int {
	givers := make(map[string]struct{})
	for _, d := range donations {
		if d.GiverAddress == "" {
			continue
		}
		givers[d.GiverAddress] = struct{}{}
	}
	return len(givers)
}

func parentIn(parents []int64, ids map[int64]struct{}) bool {
	for _, p := range parents {
		if _, ok := ids[p]; ok {
			return true
		}
	}
	return false
}

func (r *Rollup) logCounterDiff(entity *Entity, fresh []Counter) {
	for _, c := range fresh {
		r.log.WithFields(logrus.Fields{
			"entity":         entity.ID,
			"kind":           entity.Kind,
			"symbol":         c.Symbol,
			"totalDonated":   c.TotalDonated.String(),
			"currentBalance": c.CurrentBalance.String(),
			"donationCount":  c.DonationCount,
		}).Info("entity counters drifted")
	}
}
