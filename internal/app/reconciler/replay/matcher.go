// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/app/reconciler"
)

// Matcher applies Transfer events against the working set: it draws balance
// FIFO from the source pledge's charged queue, attributes provenance, and
// creates or updates the destination donation.
type Matcher struct {
	log       *logrus.Logger
	st        *State
	donations DonationStore
	admins    AdminDirectory
	oracle    reconciler.PriceOracle
	tokens    *reconciler.TokenRegistry
	stat      *reconciler.Statistic
	fix       bool
}

func NewMatcher(
	log *logrus.Logger,
	st *State,
	donations DonationStore,
	admins AdminDirectory,
	oracle reconciler.PriceOracle,
	tokens *reconciler.TokenRegistry,
	stat *reconciler.Statistic,
	fix bool,
) *Matcher {
	return &Matcher{
		log:       log,
		st:        st,
		donations: donations,
		admins:    admins,
		oracle:    oracle,
		tokens:    tokens,
		stat:      stat,
		fix:       fix,
	}
}

// ApplyTransfer replays one Transfer event. isReverted marks a transfer the
// event source already knows was reverted on the home chain.
func (m *Matcher) ApplyTransfer(ctx context.Context, ev reconciler.Event, isReverted bool) error {
	used, giverAddress, err := m.drawSource(ctx, ev)
	if err != nil {
		return err
	}
	return m.resolveDestination(ctx, ev, used, giverAddress, isReverted)
}

// drawSource consumes ev.Amount from the source pledge's charged queue and
// returns the provenance ids and the captured giver address. A transfer from
// pledge 0 injects fresh funds and draws nothing.
func (m *Matcher) drawSource(ctx context.Context, ev reconciler.Event) ([]int64, string, error) {
	if ev.From == 0 {
		return nil, "", nil
	}

	toPledge := m.st.Pledge(ev.To)
	if toPledge == nil {
		return nil, "", Fatalf("transfer tx %s targets unknown pledge %d", ev.TxHash, ev.To)
	}
	toOwner := m.st.Admin(toPledge.Owner)

	// No persisted candidate waits at the destination: the record may be
	// mis-parked in the failed bucket. Reclassify it before drawing.
	if !m.st.hasUnmatched(ev.To, ev.TxHash) {
		if err := m.recoverFailed(ctx, ev, toPledge, toOwner); err != nil {
			return nil, "", err
		}
	}

	candidates := m.st.Charged(ev.From)
	if len(candidates) == 0 {
		return nil, "", Fatalf("no charged donation at pledge %d for transfer to %d (tx %s)", ev.From, ev.To, ev.TxHash)
	}

	var used []int64
	var giverAddress string

	// A same-transaction tail entry with enough balance is an in-transaction
	// adjustment: charge that specific donation only, instead of
	// misattributing the draw to unrelated earlier donors.
	last := candidates[len(candidates)-1]
	if last.TxHash == ev.TxHash && last.AmountRemaining.GreaterThanOrEqual(ev.Amount) {
		giverAddress = last.GiverAddress
		last.AmountRemaining = last.AmountRemaining.Sub(ev.Amount)
		m.log.WithField("donation", last.ID).
			Debugf("amount %s reduced from same-tx charged entry, %s remaining", ev.Amount, last.AmountRemaining)
		if last.ID != 0 {
			used = append(used, last.ID)
		}
		if last.AmountRemaining.IsZero() {
			m.st.charged[ev.From] = candidates[:len(candidates)-1]
		}
		return used, giverAddress, nil
	}

	remaining := ev.Amount
	consumed := 0
	for _, item := range candidates {
		if item.GiverAddress != "" {
			giverAddress = item.GiverAddress
		}

		draw := decimal.Min(item.AmountRemaining, remaining)
		item.AmountRemaining = item.AmountRemaining.Sub(draw)
		remaining = remaining.Sub(draw)
		if item.AmountRemaining.IsZero() {
			consumed++
			// a fully drained ToApprove resolves: the proposal was either
			// accepted by its intended project or rejected
			if item.Status == reconciler.StatusToApprove {
				if toPledge.Owner == item.IntendedProjectID {
					item.Status = reconciler.StatusCommitted
				} else {
					item.Status = reconciler.StatusRejected
				}
			}
		}
		m.log.WithField("donation", item.ID).
			Debugf("amount %s reduced, %s remaining", draw, item.AmountRemaining)
		if item.ID != 0 {
			used = append(used, item.ID)
		}
		if remaining.IsZero() {
			break
		}
	}
	m.st.charged[ev.From] = candidates[consumed:]

	if !remaining.IsZero() {
		m.log.Errorf("charged donations at pledge %d don't have enough balance, deficit %s", ev.From, remaining)
		return nil, "", Fatalf("balance deficit %s at pledge %d (tx %s)", remaining, ev.From, ev.TxHash)
	}
	return used, giverAddress, nil
}

// recoverFailed searches the failed bucket (pledge 0) for a record that
// matches this transfer and whose sole recorded parent sits at the source
// pledge. A hit has not actually failed: it is reclassified onto the
// destination pledge and rejoins matching.
func (m *Matcher) recoverFailed(ctx context.Context, ev reconciler.Event, toPledge *reconciler.Pledge, toOwner *reconciler.Admin) error {
	failed := m.st.unmatched[0]
	match := -1
	for i, item := range failed {
		if item.TxHash != ev.TxHash || !item.Amount.Equal(ev.Amount) {
			continue
		}
		if len(item.ParentDonations) == 0 {
			continue
		}
		parent := m.st.byID[item.ParentDonations[0]]
		if parent != nil && parent.PledgeID == ev.From {
			match = i
			break
		}
	}
	if match == -1 {
		return nil
	}

	d := m.st.takeUnmatched(0, match)
	m.log.Errorf("donation %d hasn't failed, it should be updated", d.ID)

	status, err := DeriveStatus(toPledge, toOwner)
	if err != nil {
		return err
	}
	d.Status = status
	d.PledgeID = ev.To
	d.Mined = true
	m.st.unmatched[ev.To] = append(m.st.unmatched[ev.To], d)
	m.stat.CorrectedFailedDonations++

	if m.fix {
		m.log.Debug("updating reclassified donation...")
		mined := true
		err := m.donations.Update(ctx, d.ID, reconciler.DonationUpdate{
			Status:   &status,
			PledgeID: &ev.To,
			Mined:    &mined,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to reclassify donation %d", d.ID)
		}
		m.stat.UpdatedDonations++
	}
	return nil
}

// resolveDestination matches the transfer against the destination pledge's
// unmatched persisted donations, correcting the matched record or creating a
// missing one, and pushes the result onto the destination's charged queue.
func (m *Matcher) resolveDestination(ctx context.Context, ev reconciler.Event, used []int64, giverAddress string, isReverted bool) error {
	toPledge := m.st.Pledge(ev.To)
	if toPledge == nil {
		return Fatalf("transfer tx %s targets unknown pledge %d", ev.TxHash, ev.To)
	}
	fromPledge := m.st.Pledge(ev.From)
	toOwner := m.st.Admin(toPledge.Owner)
	var fromOwner *reconciler.Admin
	if fromPledge != nil {
		fromOwner = m.st.Admin(fromPledge.Owner)
	}

	isReturn := isReverted || m.st.isReturnTransfer(fromPledge, fromOwner, ev.From, ev.To, ev.TxHash)

	idx := m.st.findUnmatched(ev.To, ev.TxHash, isReturn)
	if idx == -1 && !isReturn {
		idx = m.st.findUnmatchedReturn(ev.To, ev.TxHash)
		if idx != -1 {
			isReturn = true
		}
	}
	var toDonation *reconciler.Donation
	if idx != -1 {
		toDonation = m.st.takeUnmatched(ev.To, idx)
	}

	if !isReturn && IsRejectedDelegation(fromPledge, toPledge) {
		isReturn = true
	}

	if toDonation == nil {
		return m.createDestination(ctx, ev, toPledge, toOwner, used, giverAddress, isReturn)
	}
	return m.updateDestination(ctx, ev, toPledge, toOwner, toDonation, used, isReturn)
}

func (m *Matcher) updateDestination(
	ctx context.Context,
	ev reconciler.Event,
	toPledge *reconciler.Pledge,
	toOwner *reconciler.Admin,
	toDonation *reconciler.Donation,
	used []int64,
	isReturn bool,
) error {
	expected, err := DeriveStatus(toPledge, toOwner)
	if err != nil {
		return err
	}
	// a committed campaign-owned child proves the trace payout loop closed
	if m.st.hasCommittedCampaignChild(toDonation) {
		expected = reconciler.StatusPaid
	}

	if !toDonation.Mined {
		m.log.Errorf("donation %d mined flag should be true", toDonation.ID)
		if m.fix {
			mined := true
			if err := m.donations.Update(ctx, toDonation.ID, reconciler.DonationUpdate{Mined: &mined}); err != nil {
				return errors.Wrapf(err, "failed to update mined flag of donation %d", toDonation.ID)
			}
			m.stat.UpdatedDonations++
		}
		toDonation.Mined = true
	}

	toDonation.Status = expected

	if !sameParents(used, toDonation.ParentDonations) {
		m.log.Errorf("parents of donation %d should be updated to %v", toDonation.ID, used)
		if m.fix {
			if err := m.donations.Update(ctx, toDonation.ID, reconciler.DonationUpdate{ParentDonations: used}); err != nil {
				return errors.Wrapf(err, "failed to update parents of donation %d", toDonation.ID)
			}
			m.stat.UpdatedDonations++
		}
		toDonation.ParentDonations = used
	}

	if toDonation.IsReturn != isReturn {
		m.log.Errorf("donation %d isReturn flag should be %t", toDonation.ID, isReturn)
		if m.fix {
			if err := m.donations.Update(ctx, toDonation.ID, reconciler.DonationUpdate{IsReturn: &isReturn}); err != nil {
				return errors.Wrapf(err, "failed to update isReturn flag of donation %d", toDonation.ID)
			}
			m.stat.UpdatedDonations++
		}
		toDonation.IsReturn = isReturn
	}

	oldValue := toDonation.USDValue
	m.setDisplayValue(ctx, toDonation)
	if !oldValue.Equal(toDonation.USDValue) {
		m.log.Errorf("donation %d display value is %s but should be %s", toDonation.ID, oldValue, toDonation.USDValue)
		if m.fix {
			value := toDonation.USDValue
			if err := m.donations.Update(ctx, toDonation.ID, reconciler.DonationUpdate{USDValue: &value}); err != nil {
				return errors.Wrapf(err, "failed to update display value of donation %d", toDonation.ID)
			}
			m.stat.UpdatedDonations++
		}
	}

	toDonation.TxHash = ev.TxHash
	toDonation.PledgeID = ev.To
	toDonation.AmountRemaining = ev.Amount
	m.st.addCharged(toDonation)

	m.log.WithField("donation", toDonation.ID).
		Debugf("amount %s charged, status %s", ev.Amount, toDonation.Status)
	return nil
}

func (m *Matcher) createDestination(
	ctx context.Context,
	ev reconciler.Event,
	toPledge *reconciler.Pledge,
	toOwner *reconciler.Admin,
	used []int64,
	giverAddress string,
	isReturn bool,
) error {
	status, err := DeriveStatus(toPledge, toOwner)
	if err != nil {
		return err
	}

	d := &reconciler.Donation{
		TxHash:          ev.TxHash,
		ParentDonations: used,
		PledgeID:        ev.To,
		Amount:          ev.Amount,
		AmountRemaining: ev.Amount,
		OwnerID:         toPledge.Owner,
		Status:          status,
		SavedStatus:     status,
		GiverAddress:    giverAddress,
		IsReturn:        isReturn,
		Mined:           true,
		SystemCreated:   true,
		CreatedAt:       ev.Time,
	}
	d.HomeTxHash = m.homeTxHash(ev, used)

	if !m.fix {
		m.log.Infof("this donation should be created: pledge %d amount %s tx %s status %s", ev.To, ev.Amount, ev.TxHash, status)
		m.st.track(d)
		m.st.addCharged(d)
		return nil
	}

	rec, err := m.admins.ByChainID(ctx, toPledge.Owner)
	if err != nil {
		return errors.Wrapf(err, "failed to look up admin record %d", toPledge.Owner)
	}
	if rec == nil {
		if toOwner == nil || toOwner.Kind != reconciler.KindGiver {
			return Fatalf("no admin record exists for non-giver admin %d", toPledge.Owner)
		}
		rec, err = m.admins.CreateGiver(ctx, toPledge.Owner, toOwner.Address)
		if err != nil {
			return errors.Wrapf(err, "failed to create giver record %d", toPledge.Owner)
		}
		m.stat.CreatedAdmins++
		m.log.Infof("admin record created for giver %d", toPledge.Owner)
	}
	d.OwnerID = rec.ChainID
	d.OwnerKind = rec.Kind
	d.OwnerTypeID = rec.TypeID

	token, ok := m.tokens.ByForeignAddress(toPledge.Token)
	if !ok {
		return Fatalf("no token found for address %s", toPledge.Token)
	}
	d.TokenAddress = token.Address

	if toPledge.Delegated() {
		delegate, err := m.admins.ByChainID(ctx, toPledge.Delegates[0])
		if err != nil {
			return errors.Wrapf(err, "failed to look up delegate record %d", toPledge.Delegates[0])
		}
		if delegate == nil {
			return Fatalf("no delegate record found for id %d", toPledge.Delegates[0])
		}
		d.DelegateID = delegate.ChainID
		d.DelegateKind = delegate.Kind
		d.DelegateTypeID = delegate.TypeID

		if toPledge.IntendedProject != 0 {
			project, err := m.admins.ByChainID(ctx, toPledge.IntendedProject)
			if err != nil {
				return errors.Wrapf(err, "failed to look up project record %d", toPledge.IntendedProject)
			}
			if project == nil {
				return Fatalf("no project record found for id %d", toPledge.IntendedProject)
			}
			d.IntendedProjectID = project.ChainID
			d.IntendedProjectKind = project.Kind
			d.IntendedProjectTypeID = project.TypeID
		}
	}

	if d.GiverAddress == "" {
		if toOwner == nil || toOwner.Kind != reconciler.KindGiver {
			return Fatalf("cannot resolve giver address for donation at pledge %d (tx %s)", ev.To, ev.TxHash)
		}
		d.GiverAddress = rec.TypeID
	}

	if cutoff, ok := m.tokens.Cutoff(token.Symbol); ok {
		d.LessThanCutoff = cutoff.GreaterThan(d.AmountRemaining)
	}
	m.setDisplayValue(ctx, d)

	id, err := m.donations.Insert(ctx, d)
	if err != nil {
		return errors.Wrapf(err, "failed to insert donation (tx %s)", ev.TxHash)
	}
	d.ID = id
	d.SavedAmountRemaining = d.AmountRemaining
	m.st.register(d)
	m.stat.CreatedDonations++
	m.log.Infof("donation created: id %d pledge %d amount %s tx %s status %s", id, ev.To, ev.Amount, ev.TxHash, status)

	m.st.addCharged(d)
	return nil
}

// homeTxHash propagates the cross-chain hash from a sole parent carrying one
// for the same transaction. Resolving it against the bridge is the
// acquisition job's concern; absence is degraded, not fatal.
func (m *Matcher) homeTxHash(ev reconciler.Event, used []int64) string {
	if ev.From == 0 || len(used) != 1 {
		return ""
	}
	parent := m.st.byID[used[0]]
	if parent != nil && parent.TxHash == ev.TxHash && parent.HomeTxHash != "" {
		return parent.HomeTxHash
	}
	return ""
}

// setDisplayValue refreshes the best-effort display-currency value. Oracle
// failure leaves the value as is.
func (m *Matcher) setDisplayValue(ctx context.Context, d *reconciler.Donation) {
	if m.oracle == nil {
		return
	}
	symbol := m.tokens.SymbolByAddress(d.TokenAddress)
	rate, err := m.oracle.Rate(ctx, symbol, d.CreatedAt)
	if err != nil {
		m.log.WithField("donation", d.ID).
			Warn(errors.Wrap(err, "failed to resolve display rate"))
		return
	}
	d.USDValue = d.Amount.Div(decimal.New(1, 18)).Mul(rate).Round(2)
}

func sameParents(used, parents []int64) bool {
	if len(used) != len(parents) {
		return false
	}
	set := make(map[int64]struct{}, len(parents))
	for _, id := range parents {
		set[id] = struct{}{}
	}
	for _, id := range used {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
