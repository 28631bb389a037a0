// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pledger/reconciler/internal/app/reconciler"
)

func TestMatcher_CreateFromExternal(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 1000),
	}
	f := newFixture(t, testSnapshot(), events, nil, true)
	// no directory record for the giver yet, it must be bootstrapped
	delete(f.admins.records, 1)

	require.NoError(t, f.replay(events))

	require.Len(t, f.store.inserts, 1)
	d := f.store.inserts[0]
	require.Equal(t, reconciler.StatusWaiting, d.Status)
	require.True(t, d.Amount.Equal(amount(1000)))
	require.True(t, d.AmountRemaining.Equal(amount(1000)))
	require.True(t, d.Mined)
	require.True(t, d.SystemCreated)
	require.Equal(t, "0xgiver1", d.GiverAddress)
	require.Equal(t, ethAddress, d.TokenAddress)
	require.Empty(t, d.ParentDonations)

	require.Equal(t, []int64{1}, f.admins.created)
	require.Equal(t, 1, f.stat.CreatedDonations)
	require.Equal(t, 1, f.stat.CreatedAdmins)

	charged := f.st.Charged(1)
	require.Len(t, charged, 1)
	require.Same(t, d, charged[0])
}

func TestMatcher_FIFODraw(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-a", 1, 0, 1, 300),
		transfer("tx-b", 2, 0, 1, 200),
		transfer("tx-c", 3, 1, 2, 400),
	}
	f := newFixture(t, testSnapshot(), events, nil, true)

	require.NoError(t, f.replay(events))

	require.Len(t, f.store.inserts, 3)
	first := f.store.inserts[0]
	second := f.store.inserts[1]
	dest := f.store.inserts[2]

	// the oldest donation drains first, the next covers the rest
	require.True(t, first.AmountRemaining.IsZero())
	require.True(t, second.AmountRemaining.Equal(amount(100)))
	require.Equal(t, []int64{first.ID, second.ID}, dest.ParentDonations)
	require.Equal(t, reconciler.StatusCommitted, dest.Status)
	require.True(t, dest.AmountRemaining.Equal(amount(400)))

	// drained entries leave the queue
	charged := f.st.Charged(1)
	require.Len(t, charged, 1)
	require.Same(t, second, charged[0])

	// conservation: everything injected is still accounted for
	total := first.AmountRemaining.Add(second.AmountRemaining).Add(dest.AmountRemaining)
	require.True(t, total.Equal(amount(500)))
}

func TestMatcher_SameTxTailDraw(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-a", 1, 0, 1, 500),
		transfer("tx-x", 2, 0, 1, 300),
		transfer("tx-x", 3, 1, 2, 100),
	}
	f := newFixture(t, testSnapshot(), events, nil, true)

	require.NoError(t, f.replay(events))

	require.Len(t, f.store.inserts, 3)
	old := f.store.inserts[0]
	tail := f.store.inserts[1]
	dest := f.store.inserts[2]

	// the same-transaction tail entry is charged, not the older donor
	require.True(t, old.AmountRemaining.Equal(amount(500)))
	require.True(t, tail.AmountRemaining.Equal(amount(200)))
	require.Equal(t, []int64{tail.ID}, dest.ParentDonations)
}

func TestMatcher_ReturnFromTrace(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 1000),
		transfer("tx-d", 2, 1, 2, 1000),
		transfer("tx-r", 3, 2, 3, 1000),
		transfer("tx-r", 4, 3, 2, 250),
	}
	f := newFixture(t, testSnapshot(), events, nil, true)

	require.NoError(t, f.replay(events))

	require.Len(t, f.store.inserts, 4)
	refund := f.store.inserts[3]
	require.True(t, refund.IsReturn)
	require.Equal(t, reconciler.StatusCommitted, refund.Status)
	require.True(t, refund.AmountRemaining.Equal(amount(250)))

	forward := f.store.inserts[2]
	require.False(t, forward.IsReturn)
	require.True(t, forward.AmountRemaining.Equal(amount(750)))
}

func TestMatcher_RejectedDelegation(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 1000),
		transfer("tx-d", 2, 1, 4, 1000),
		transfer("tx-b", 3, 4, 1, 1000),
	}
	f := newFixture(t, testSnapshot(), events, nil, true)

	require.NoError(t, f.replay(events))

	require.Len(t, f.store.inserts, 3)
	delegated := f.store.inserts[1]
	// the drain never reached the proposed trace, so the proposal resolves
	// to rejected
	require.Equal(t, reconciler.StatusRejected, delegated.Status)
	require.Equal(t, int64(3), delegated.IntendedProjectID)
	require.Equal(t, reconciler.KindCommunity, delegated.DelegateKind)

	bounced := f.store.inserts[2]
	require.True(t, bounced.IsReturn)
	require.Equal(t, reconciler.StatusWaiting, bounced.Status)
}

func TestMatcher_RecoverFailed(t *testing.T) {
	persisted := []*reconciler.Donation{
		{
			ID:              10,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(500),
			AmountRemaining: amount(0),
			TxHash:          "tx-i",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
		{
			ID:              11,
			PledgeID:        0,
			OwnerID:         2,
			OwnerKind:       reconciler.KindCampaign,
			Status:          reconciler.StatusFailed,
			Amount:          amount(500),
			AmountRemaining: amount(0),
			TxHash:          "tx-t",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{10},
			Mined:           false,
		},
	}
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 500),
		transfer("tx-t", 2, 1, 2, 500),
	}
	f := newFixture(t, testSnapshot(), events, persisted, true)

	require.NoError(t, f.replay(events))

	require.Equal(t, 1, f.stat.CorrectedFailedDonations)
	rescued := persisted[1]
	require.Equal(t, int64(2), rescued.PledgeID)
	require.Equal(t, reconciler.StatusCommitted, rescued.Status)
	require.True(t, rescued.Mined)
	require.NotEmpty(t, f.store.updates[11])

	// nothing was created, the persisted pair covers the whole log
	require.Empty(t, f.store.inserts)
}

func TestMatcher_ConsistentLedgerIsNoop(t *testing.T) {
	persisted := []*reconciler.Donation{
		{
			ID:              10,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(500),
			AmountRemaining: amount(0),
			TxHash:          "tx-i",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
		{
			ID:              11,
			PledgeID:        2,
			OwnerID:         2,
			OwnerKind:       reconciler.KindCampaign,
			Status:          reconciler.StatusCommitted,
			Amount:          amount(500),
			AmountRemaining: amount(500),
			TxHash:          "tx-t",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{10},
			Mined:           true,
		},
	}
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 500),
		transfer("tx-t", 2, 1, 2, 500),
	}
	f := newFixture(t, testSnapshot(), events, persisted, true)

	require.NoError(t, f.replay(events))

	resolver := NewResolver(testLog(), f.st, f.store, testTokens(), f.stat, true)
	require.NoError(t, resolver.Resolve(context.Background()))

	require.Empty(t, f.store.inserts)
	require.Empty(t, f.store.deletes)
	require.Zero(t, f.store.updateCount())
	require.Zero(t, f.stat.CreatedDonations)
	require.Zero(t, f.stat.UpdatedDonations)
	require.Zero(t, f.stat.DeletedDonations)
}

func TestMatcher_TracePayoutResolvesPaid(t *testing.T) {
	persisted := []*reconciler.Donation{
		{
			ID:              10,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(1000),
			AmountRemaining: amount(0),
			TxHash:          "tx-i",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
		{
			ID:              11,
			PledgeID:        2,
			OwnerID:         2,
			OwnerKind:       reconciler.KindCampaign,
			Status:          reconciler.StatusCommitted,
			Amount:          amount(1000),
			AmountRemaining: amount(0),
			TxHash:          "tx-d",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{10},
			Mined:           true,
		},
		{
			ID:              12,
			PledgeID:        3,
			OwnerID:         3,
			OwnerKind:       reconciler.KindTrace,
			Status:          reconciler.StatusPaid,
			Amount:          amount(1000),
			AmountRemaining: amount(1000),
			TxHash:          "tx-p",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{11},
			Mined:           true,
		},
		{
			ID:              13,
			PledgeID:        2,
			OwnerID:         2,
			OwnerKind:       reconciler.KindCampaign,
			Status:          reconciler.StatusCommitted,
			Amount:          amount(250),
			AmountRemaining: amount(250),
			TxHash:          "tx-r",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{12},
			IsReturn:        true,
			Mined:           true,
		},
	}
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 1000),
		transfer("tx-d", 2, 1, 2, 1000),
		transfer("tx-p", 3, 2, 3, 1000),
	}
	f := newFixture(t, testSnapshot(), events, persisted, true)

	require.NoError(t, f.replay(events))

	// the committed campaign-owned refund 13 proves the trace payout 12
	// closed its loop, so 12 resolves to Paid despite its Pledged state
	require.Equal(t, reconciler.StatusPaid, persisted[2].Status)

	// the giver donation also has a committed campaign-owned child (11),
	// but only trace payouts ever resolve to Paid this way; the giver
	// keeps the status derived from its own pledge
	require.Equal(t, reconciler.StatusWaiting, persisted[0].Status)

	require.Empty(t, f.store.inserts)
	require.Zero(t, f.store.updateCount())
}

func TestMatcher_ReturnRecordMatchesForwardTransfer(t *testing.T) {
	persisted := []*reconciler.Donation{
		{
			ID:              18,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(1000),
			AmountRemaining: amount(0),
			TxHash:          "tx-i",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
		{
			ID:              20,
			PledgeID:        3,
			OwnerID:         3,
			OwnerKind:       reconciler.KindTrace,
			Status:          reconciler.StatusPaid,
			Amount:          amount(1000),
			AmountRemaining: amount(600),
			TxHash:          "tx-p",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{18},
			Mined:           true,
		},
		{
			ID:              21,
			PledgeID:        2,
			OwnerID:         2,
			OwnerKind:       reconciler.KindCampaign,
			Status:          reconciler.StatusCommitted,
			Amount:          amount(400),
			AmountRemaining: amount(400),
			TxHash:          "tx-r",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{20},
			IsReturn:        true,
			Mined:           true,
		},
	}
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 1000),
		transfer("tx-p", 2, 1, 3, 1000),
		transfer("tx-r", 3, 3, 2, 400),
	}
	f := newFixture(t, testSnapshot(), events, persisted, true)

	require.NoError(t, f.replay(events))

	// tx-r looks like an ordinary forward transfer, yet the persisted
	// record 21 is flagged as a return. Its lineage (paid trace parent,
	// committed campaign child) makes it acceptable on second chance, so
	// no duplicate donation is created
	require.Empty(t, f.store.inserts)
	require.Zero(t, f.store.updateCount())

	charged := f.st.Charged(2)
	require.Len(t, charged, 1)
	require.Same(t, persisted[2], charged[0])
	require.True(t, persisted[2].AmountRemaining.Equal(amount(400)))
	require.True(t, persisted[2].IsReturn)
}

func TestMatcher_ReturnRecordRequiresPaidTraceParent(t *testing.T) {
	persisted := []*reconciler.Donation{
		{
			ID:              18,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(1000),
			AmountRemaining: amount(0),
			TxHash:          "tx-i",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
		{
			ID:              20,
			PledgeID:        3,
			OwnerID:         3,
			OwnerKind:       reconciler.KindTrace,
			Status:          reconciler.StatusCommitted,
			Amount:          amount(1000),
			AmountRemaining: amount(600),
			TxHash:          "tx-p",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{18},
			Mined:           true,
		},
		{
			ID:              21,
			PledgeID:        2,
			OwnerID:         2,
			OwnerKind:       reconciler.KindCampaign,
			Status:          reconciler.StatusCommitted,
			Amount:          amount(400),
			AmountRemaining: amount(400),
			TxHash:          "tx-r",
			TokenAddress:    ethAddress,
			ParentDonations: []int64{20},
			IsReturn:        true,
			Mined:           true,
		},
	}
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 1000),
		transfer("tx-p", 2, 1, 3, 1000),
		transfer("tx-r", 3, 3, 2, 400),
	}
	f := newFixture(t, testSnapshot(), events, persisted, true)

	require.NoError(t, f.replay(events))

	// parent 20 never reached Paid, so the return-flagged record 21 is not
	// an acceptable match for the forward transfer; a fresh donation is
	// created and 21 stays unmatched
	require.Len(t, f.store.inserts, 1)
	created := f.store.inserts[0]
	require.Equal(t, int64(2), created.PledgeID)
	require.False(t, created.IsReturn)
	require.Equal(t, []int64{20}, created.ParentDonations)

	require.True(t, f.st.hasUnmatched(2, "tx-r"))
}

func TestMatcher_HomeTxHashFromSameTxParent(t *testing.T) {
	persisted := []*reconciler.Donation{
		{
			ID:              30,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(500),
			AmountRemaining: amount(500),
			TxHash:          "tx-x",
			HomeTxHash:      "home-x",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
	}
	events := []reconciler.Event{
		transfer("tx-x", 1, 0, 1, 500),
		transfer("tx-x", 2, 1, 2, 200),
	}
	f := newFixture(t, testSnapshot(), events, persisted, true)

	require.NoError(t, f.replay(events))

	// the sole parent carries a cross-chain hash for the same transaction,
	// so the created destination inherits it
	require.Len(t, f.store.inserts, 1)
	created := f.store.inserts[0]
	require.Equal(t, "home-x", created.HomeTxHash)
	require.Equal(t, []int64{30}, created.ParentDonations)
}

func TestMatcher_HomeTxHashStaysWithinTransaction(t *testing.T) {
	persisted := []*reconciler.Donation{
		{
			ID:              30,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(500),
			AmountRemaining: amount(500),
			TxHash:          "tx-x",
			HomeTxHash:      "home-x",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
	}
	events := []reconciler.Event{
		transfer("tx-x", 1, 0, 1, 500),
		transfer("tx-y", 2, 1, 2, 200),
	}
	f := newFixture(t, testSnapshot(), events, persisted, true)

	require.NoError(t, f.replay(events))

	// the parent's hash belongs to another transaction and must not leak
	require.Len(t, f.store.inserts, 1)
	require.Empty(t, f.store.inserts[0].HomeTxHash)
}

func TestMatcher_HomeTxHashRequiresSoleParent(t *testing.T) {
	persisted := []*reconciler.Donation{
		{
			ID:              31,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(250),
			AmountRemaining: amount(250),
			TxHash:          "tx-x",
			HomeTxHash:      "home-x",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
		{
			ID:              32,
			PledgeID:        1,
			OwnerID:         1,
			OwnerKind:       reconciler.KindGiver,
			Status:          reconciler.StatusWaiting,
			Amount:          amount(250),
			AmountRemaining: amount(250),
			TxHash:          "tx-x",
			HomeTxHash:      "home-x",
			GiverAddress:    "0xgiver1",
			TokenAddress:    ethAddress,
			Mined:           true,
		},
	}
	events := []reconciler.Event{
		transfer("tx-x", 1, 0, 1, 250),
		transfer("tx-x", 2, 0, 1, 250),
		transfer("tx-x", 3, 1, 2, 500),
	}
	f := newFixture(t, testSnapshot(), events, persisted, true)

	require.NoError(t, f.replay(events))

	// two parents were drained, provenance of the hash is ambiguous
	require.Len(t, f.store.inserts, 1)
	created := f.store.inserts[0]
	require.Empty(t, created.HomeTxHash)
	require.Equal(t, []int64{31, 32}, created.ParentDonations)
}

func TestMatcher_BalanceDeficitIsFatal(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 100),
		transfer("tx-t", 2, 1, 2, 500),
	}
	f := newFixture(t, testSnapshot(), events, nil, true)

	err := f.replay(events)
	require.Error(t, err)
	require.True(t, IsFatal(err))
}

func TestMatcher_UnknownDestinationIsFatal(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 100),
		transfer("tx-t", 2, 1, 7, 100),
	}
	f := newFixture(t, testSnapshot(), events, nil, true)

	err := f.replay(events)
	require.Error(t, err)
	require.True(t, IsFatal(err))
}

func TestMatcher_DryRunWritesNothing(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 300),
		transfer("tx-t", 2, 1, 2, 300),
	}
	f := newFixture(t, testSnapshot(), events, nil, false)

	require.NoError(t, f.replay(events))

	require.Empty(t, f.store.inserts)
	require.Zero(t, f.store.updateCount())
	require.Empty(t, f.admins.created)

	// the repaired ledger still reflects both memory-only donations
	require.Len(t, f.st.Ledger(), 2)
	require.Len(t, f.st.Charged(2), 1)
}
