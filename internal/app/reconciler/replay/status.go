// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"github.com/pledger/reconciler/internal/app/reconciler"
)

// DeriveStatus maps a pledge lifecycle state and its owning admin to the
// ledger status. An unknown raw state is a fatal data error.
func DeriveStatus(p *reconciler.Pledge, owner *reconciler.Admin) (reconciler.Status, error) {
	switch p.State {
	case reconciler.StatePaying:
		return reconciler.StatusPaying, nil
	case reconciler.StatePaid:
		return reconciler.StatusPaid, nil
	case reconciler.StatePledged:
		if p.IntendedProject != 0 {
			return reconciler.StatusToApprove, nil
		}
		if (owner != nil && owner.Kind == reconciler.KindGiver) || p.Delegated() {
			return reconciler.StatusWaiting, nil
		}
		return reconciler.StatusCommitted, nil
	}
	return "", Fatalf("unknown pledge state %d for pledge %d", p.State, p.ID)
}

// isReturnTransfer detects a refund of excess funds. Only pledges owned by a
// trace can be over-funded; the tell is another Transfer event in the same
// transaction moving value from the destination pledge (or from the source
// pledge's prior version) back to the source pledge.
//
// Example events in a return case:
//	Transfer(from: 1, to: 2, amount: 1000)
//	Transfer(from: 2, to: 1, amount: < 1000)
func (s *State) isReturnTransfer(fromPledge *reconciler.Pledge, fromOwner *reconciler.Admin, fromID, toID int64, txHash string) bool {
	if fromID == 0 || fromOwner == nil || fromOwner.Kind != reconciler.KindTrace {
		return false
	}
	for _, e := range s.txTransfers[txHash] {
		// funds may rebound directly into fromPledge.oldPledge when
		// delegated funds are returned; the intermediary pledge is the one
		// carrying the intended project
		if (e.From == toID || (fromPledge != nil && fromPledge.OldPledge == toID)) && e.To == fromID {
			return true
		}
	}
	return false
}

// IsRejectedDelegation reports whether a delegate moved funds without
// routing them to the project the source pledge proposed.
func IsRejectedDelegation(fromPledge, toPledge *reconciler.Pledge) bool {
	return fromPledge != nil &&
		fromPledge.IntendedProject > 0 &&
		fromPledge.IntendedProject != toPledge.Owner
}
