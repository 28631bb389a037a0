// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/app/reconciler"
)

// Resolver is the post-replay diff/repair pass: persisted donations never
// matched during replay are orphans and get deleted; matched donations whose
// persisted balance or status drifted from the recomputed values get
// corrected. Every correction is an independent idempotent write; rerunning
// the resolver on a consistent ledger is a no-op. Failed donations are
// exempt.
type Resolver struct {
	log       *logrus.Logger
	st        *State
	donations DonationStore
	tokens    *reconciler.TokenRegistry
	stat      *reconciler.Statistic
	fix       bool
}

func NewResolver(
	log *logrus.Logger,
	st *State,
	donations DonationStore,
	tokens *reconciler.TokenRegistry,
	stat *reconciler.Statistic,
	fix bool,
) *Resolver {
	return &Resolver{
		log:       log,
		st:        st,
		donations: donations,
		tokens:    tokens,
		stat:      stat,
		fix:       fix,
	}
}

func (r *Resolver) Resolve(ctx context.Context) error {
	unused := r.st.unusedIDs()

	for _, id := range r.st.sortedIDs() {
		d := r.st.byID[id]
		if d.Status == reconciler.StatusFailed {
			continue
		}

		if _, ok := unused[id]; ok {
			if err := r.deleteOrphan(ctx, d); err != nil {
				return err
			}
			continue
		}

		if err := r.correctAmount(ctx, d); err != nil {
			return err
		}
		if err := r.correctStatus(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) deleteOrphan(ctx context.Context, d *reconciler.Donation) error {
	r.log.Errorf(
		"donation was unused: id %d amount %s remaining %s status %s pledge %d tx %s",
		d.ID, d.Amount, d.SavedAmountRemaining, d.SavedStatus, d.PledgeID, d.TxHash,
	)
	if !r.fix {
		return nil
	}
	r.log.WithField("donation", d.ID).Debug("deleting...")
	if err := r.donations.Delete(ctx, d.ID); err != nil {
		return errors.Wrapf(err, "failed to delete orphaned donation %d", d.ID)
	}
	r.stat.DeletedDonations++
	return nil
}

func (r *Resolver) correctAmount(ctx context.Context, d *reconciler.Donation) error {
	if d.AmountRemaining.Equal(d.SavedAmountRemaining) {
		return nil
	}
	r.log.Errorf(
		"donation %d should have remaining amount %s but has %s (amount %s, status %s, pledge %d, tx %s)",
		d.ID, d.AmountRemaining, d.SavedAmountRemaining, d.Amount, d.Status, d.PledgeID, d.TxHash,
	)
	if !r.fix {
		return nil
	}

	token, ok := r.tokens.ByAddress(d.TokenAddress)
	if !ok {
		r.log.WithField("donation", d.ID).
			Warnf("no token found for address %s, skipping amount correction", d.TokenAddress)
		return nil
	}
	cutoff, _ := r.tokens.Cutoff(token.Symbol)
	lessThanCutoff := cutoff.GreaterThan(d.AmountRemaining)

	amount := d.AmountRemaining
	err := r.donations.Update(ctx, d.ID, reconciler.DonationUpdate{
		AmountRemaining: &amount,
		LessThanCutoff:  &lessThanCutoff,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to correct remaining amount of donation %d", d.ID)
	}
	r.stat.UpdatedDonations++
	return nil
}

func (r *Resolver) correctStatus(ctx context.Context, d *reconciler.Donation) error {
	if d.SavedStatus == d.Status {
		return nil
	}
	r.log.Errorf(
		"donation %d status should be %s but is %s (pledge %d, tx %s)",
		d.ID, d.Status, d.SavedStatus, d.PledgeID, d.TxHash,
	)
	if !r.fix {
		return nil
	}
	status := d.Status
	if err := r.donations.Update(ctx, d.ID, reconciler.DonationUpdate{Status: &status}); err != nil {
		return errors.Wrapf(err, "failed to correct status of donation %d", d.ID)
	}
	r.stat.UpdatedDonations++
	return nil
}
