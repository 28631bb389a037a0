// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pledger/reconciler/internal/app/reconciler"
)

// State is the mutable working set replay threads through every component:
// the snapshot, the per-pledge FIFO queues of donations holding available
// balance ("charged"), the per-pledge lists of persisted donations not yet
// matched to an event, and the id indexes. It is not safe for concurrent
// use; replay is strictly sequential.
type State struct {
	snapshot *reconciler.Snapshot

	// charged is the FIFO queue of donations currently holding available
	// balance at a pledge, oldest first.
	charged map[int64][]*reconciler.Donation
	// unmatched holds persisted donations not yet matched during replay,
	// keyed by pledge id. Key 0 is the failed bucket.
	unmatched map[int64][]*reconciler.Donation
	// byID indexes persisted donations; memory-only donations (dry run)
	// never appear here.
	byID map[int64]*reconciler.Donation
	// txTransfers groups Transfer events by transaction hash for return
	// detection.
	txTransfers map[string][]reconciler.Event
	// ownerCharged indexes charged donations by owning admin for the
	// cancellation propagator.
	ownerCharged map[int64][]*reconciler.Donation
	// childrenByParent maps a donation id to the persisted donations that
	// name it as provenance.
	childrenByParent map[int64][]*reconciler.Donation
	// all holds every donation of the working set, including memory-only
	// records created during a dry run. The rollup reads it.
	all []*reconciler.Donation
}

// NewState builds the working set from the snapshot, the full event log and
// the currently persisted ledger. Persisted donations enter with a zero
// computed balance; Saved* fields keep the persisted values for the conflict
// resolver to diff against.
func NewState(snapshot *reconciler.Snapshot, events []reconciler.Event, donations []*reconciler.Donation) *State {
	s := &State{
		snapshot:         snapshot,
		charged:          make(map[int64][]*reconciler.Donation),
		unmatched:        make(map[int64][]*reconciler.Donation),
		byID:             make(map[int64]*reconciler.Donation),
		txTransfers:      make(map[string][]reconciler.Event),
		ownerCharged:     make(map[int64][]*reconciler.Donation),
		childrenByParent: make(map[int64][]*reconciler.Donation),
	}
	for _, e := range events {
		if e.Kind == reconciler.EventTransfer {
			s.txTransfers[e.TxHash] = append(s.txTransfers[e.TxHash], e)
		}
	}
	for _, d := range donations {
		d.SavedAmountRemaining = d.AmountRemaining
		d.SavedStatus = d.Status
		d.AmountRemaining = decimal.Zero
		s.unmatched[d.PledgeID] = append(s.unmatched[d.PledgeID], d)
		s.byID[d.ID] = d
		s.all = append(s.all, d)
		for _, parent := range d.ParentDonations {
			s.childrenByParent[parent] = append(s.childrenByParent[parent], d)
		}
	}
	return s
}

func (s *State) Pledge(id int64) *reconciler.Pledge {
	return s.snapshot.Pledge(id)
}

func (s *State) Admin(id int64) *reconciler.Admin {
	return s.snapshot.Admin(id)
}

func (s *State) Charged(pledgeID int64) []*reconciler.Donation {
	return s.charged[pledgeID]
}

// addCharged pushes a donation onto its pledge's FIFO queue and indexes it
// by owning admin for cancellation lookups.
func (s *State) addCharged(d *reconciler.Donation) {
	s.charged[d.PledgeID] = append(s.charged[d.PledgeID], d)
	s.ownerCharged[d.OwnerID] = append(s.ownerCharged[d.OwnerID], d)
}

// register indexes a donation persisted during replay.
func (s *State) register(d *reconciler.Donation) {
	s.byID[d.ID] = d
	s.all = append(s.all, d)
}

// track records a memory-only donation created during a dry run so the
// rollup still sees it.
func (s *State) track(d *reconciler.Donation) {
	s.all = append(s.all, d)
}

// Ledger returns the repaired working set as it stands after replay.
func (s *State) Ledger() []*reconciler.Donation {
	return s.all
}

// hasUnmatched reports whether the pledge has a persisted donation with the
// given transaction hash still waiting for its balance.
func (s *State) hasUnmatched(pledgeID int64, txHash string) bool {
	for _, d := range s.unmatched[pledgeID] {
		if d.TxHash == txHash && d.AmountRemaining.IsZero() {
			return true
		}
	}
	return false
}

// findUnmatched returns the index of the first unmatched donation at the
// pledge with the given transaction hash, zero computed balance and matching
// return flag, or -1.
func (s *State) findUnmatched(pledgeID int64, txHash string, isReturn bool) int {
	for i, d := range s.unmatched[pledgeID] {
		if d.TxHash == txHash && d.AmountRemaining.IsZero() && d.IsReturn == isReturn {
			return i
		}
	}
	return -1
}

// findUnmatchedReturn is the second-chance destination lookup: an entry
// already flagged as a return is acceptable for a forward-shaped transfer
// only when its lineage shows a trace payout rebounding into the campaign
// that funded it.
func (s *State) findUnmatchedReturn(pledgeID int64, txHash string) int {
	for i, d := range s.unmatched[pledgeID] {
		if d.TxHash == txHash && d.AmountRemaining.IsZero() && d.IsReturn && s.backToCampaignFromTrace(d) {
			return i
		}
	}
	return -1
}

// backToCampaignFromTrace checks the persisted lineage: a committed
// campaign-owned donation whose first parent is a paid trace-owned donation
// is money coming back from a trace payout.
func (s *State) backToCampaignFromTrace(d *reconciler.Donation) bool {
	if d.OwnerKind != reconciler.KindCampaign || d.SavedStatus != reconciler.StatusCommitted {
		return false
	}
	if len(d.ParentDonations) == 0 {
		return false
	}
	parent := s.byID[d.ParentDonations[0]]
	return parent != nil &&
		parent.SavedStatus == reconciler.StatusPaid &&
		parent.OwnerKind == reconciler.KindTrace
}

// takeUnmatched removes and returns the donation at index i of the pledge's
// unmatched list.
func (s *State) takeUnmatched(pledgeID int64, i int) *reconciler.Donation {
	list := s.unmatched[pledgeID]
	d := list[i]
	s.unmatched[pledgeID] = append(list[:i:i], list[i+1:]...)
	return d
}

// hasCommittedCampaignChild reports whether a committed campaign-owned
// donation already names d as parent. Only a trace-owned d qualifies: that
// lineage is a trace payout whose value has demonstrably moved back to the
// campaign, so its status must resolve to Paid. Donations owned by anyone
// else keep the status derived from their pledge.
func (s *State) hasCommittedCampaignChild(d *reconciler.Donation) bool {
	if d.ID == 0 || d.OwnerKind != reconciler.KindTrace {
		return false
	}
	for _, child := range s.childrenByParent[d.ID] {
		if child.OwnerKind == reconciler.KindCampaign && child.SavedStatus == reconciler.StatusCommitted {
			return true
		}
	}
	return false
}

// unusedIDs collects the ids of persisted donations never matched during
// replay, still sitting in an unmatched list.
func (s *State) unusedIDs() map[int64]struct{} {
	unused := make(map[int64]struct{})
	for _, list := range s.unmatched {
		for _, d := range list {
			if d.ID != 0 {
				unused[d.ID] = struct{}{}
			}
		}
	}
	return unused
}

// sortedIDs returns all persisted donation ids in ascending order so the
// resolver walks the ledger deterministically.
func (s *State) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
