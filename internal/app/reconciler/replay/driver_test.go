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

func TestDriver_OutOfOrderIsFatal(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-b", 5, 0, 1, 100),
		transfer("tx-a", 2, 0, 1, 100),
	}
	f := newFixture(t, testSnapshot(), events, nil, false)

	err := f.replay(events)
	require.Error(t, err)
	require.True(t, IsFatal(err))
	require.Equal(t, 1, f.stat.ProcessedEvents)
}

func TestDriver_CancelDispatch(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 100),
		transfer("tx-d", 2, 1, 2, 100),
		{Kind: reconciler.EventCancelProject, TxHash: "tx-c", LogIndex: 3, ProjectID: 2},
	}
	f := newFixture(t, testSnapshot(), events, nil, false)

	require.NoError(t, f.replay(events))
	require.Equal(t, 3, f.stat.ProcessedEvents)
	require.True(t, f.st.Admin(2).Canceled)
	require.True(t, f.st.Admin(3).Canceled)
}

func TestDriver_IgnoresForeignEvents(t *testing.T) {
	events := []reconciler.Event{
		{Kind: reconciler.EventKind("GiverAdded"), TxHash: "tx-g", LogIndex: 1},
	}
	f := newFixture(t, testSnapshot(), events, nil, false)

	require.NoError(t, f.replay(events))
	require.Equal(t, 1, f.stat.ProcessedEvents)
	require.Empty(t, f.store.inserts)
}

func TestDriver_Interrupted(t *testing.T) {
	events := []reconciler.Event{
		transfer("tx-i", 1, 0, 1, 100),
	}
	f := newFixture(t, testSnapshot(), events, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := NewDriver(testLog(), f.matcher, NewCanceler(testLog(), f.st), f.stat)
	err := driver.Run(ctx, events)
	require.Error(t, err)
	require.False(t, IsFatal(err))
	require.Zero(t, f.stat.ProcessedEvents)
}
