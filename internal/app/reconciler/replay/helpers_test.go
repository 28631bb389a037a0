// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"context"
	"io/ioutil"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/configuration"
	"github.com/pledger/reconciler/internal/app/reconciler"
)

const ethAddress = "0x0000000000000000000000000000000000000000"

func testLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(ioutil.Discard)
	return log
}

func testTokens() *reconciler.TokenRegistry {
	return reconciler.NewTokenRegistry(configuration.Default().Tokens)
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

type storeMock struct {
	nextID  int64
	inserts []*reconciler.Donation
	updates map[int64][]reconciler.DonationUpdate
	deletes []int64
}

func newStoreMock() *storeMock {
	return &storeMock{
		nextID:  1000,
		updates: make(map[int64][]reconciler.DonationUpdate),
	}
}

func (m *storeMock) Insert(_ context.Context, d *reconciler.Donation) (int64, error) {
	m.nextID++
	m.inserts = append(m.inserts, d)
	return m.nextID, nil
}

func (m *storeMock) Update(_ context.Context, id int64, upd reconciler.DonationUpdate) error {
	m.updates[id] = append(m.updates[id], upd)
	return nil
}

func (m *storeMock) Delete(_ context.Context, id int64) error {
	m.deletes = append(m.deletes, id)
	return nil
}

func (m *storeMock) updateCount() int {
	n := 0
	for _, list := range m.updates {
		n += len(list)
	}
	return n
}

type adminsMock struct {
	records map[int64]*reconciler.AdminRecord
	created []int64
}

func newAdminsMock() *adminsMock {
	return &adminsMock{records: make(map[int64]*reconciler.AdminRecord)}
}

func (m *adminsMock) ByChainID(_ context.Context, chainID int64) (*reconciler.AdminRecord, error) {
	return m.records[chainID], nil
}

func (m *adminsMock) CreateGiver(_ context.Context, chainID int64, address string) (*reconciler.AdminRecord, error) {
	rec := &reconciler.AdminRecord{
		ID:      chainID,
		ChainID: chainID,
		Kind:    reconciler.KindGiver,
		TypeID:  address,
	}
	m.records[chainID] = rec
	m.created = append(m.created, chainID)
	return rec, nil
}

// testSnapshot builds the admin/pledge world most scenarios share:
// admin 1 is a giver, 2 a campaign, 3 a trace under the campaign, 4 a
// community delegate. Pledge 1 belongs to the giver, 2 to the campaign,
// 3 to the trace, 4 to the giver with the community as delegate and the
// trace as intended project.
func testSnapshot() *reconciler.Snapshot {
	s := &reconciler.Snapshot{
		Pledges: make([]*reconciler.Pledge, 8),
		Admins:  make([]*reconciler.Admin, 8),
	}
	s.Admins[1] = &reconciler.Admin{ID: 1, Kind: reconciler.KindGiver, Address: "0xgiver1"}
	s.Admins[2] = &reconciler.Admin{ID: 2, Kind: reconciler.KindCampaign, Name: "campaign"}
	s.Admins[3] = &reconciler.Admin{ID: 3, Kind: reconciler.KindTrace, Name: "trace", ParentProject: 2}
	s.Admins[4] = &reconciler.Admin{ID: 4, Kind: reconciler.KindCommunity, Name: "community"}

	s.Pledges[1] = &reconciler.Pledge{ID: 1, Owner: 1, Token: ethAddress}
	s.Pledges[2] = &reconciler.Pledge{ID: 2, Owner: 2, Token: ethAddress}
	s.Pledges[3] = &reconciler.Pledge{ID: 3, Owner: 3, Token: ethAddress}
	s.Pledges[4] = &reconciler.Pledge{ID: 4, Owner: 1, Delegates: []int64{4}, IntendedProject: 3, Token: ethAddress}
	return s
}

// testRecords registers admin directory records matching testSnapshot.
func testRecords(admins *adminsMock) {
	admins.records[1] = &reconciler.AdminRecord{ID: 1, ChainID: 1, Kind: reconciler.KindGiver, TypeID: "0xgiver1"}
	admins.records[2] = &reconciler.AdminRecord{ID: 2, ChainID: 2, Kind: reconciler.KindCampaign, TypeID: "campaign-1"}
	admins.records[3] = &reconciler.AdminRecord{ID: 3, ChainID: 3, Kind: reconciler.KindTrace, TypeID: "trace-1"}
	admins.records[4] = &reconciler.AdminRecord{ID: 4, ChainID: 4, Kind: reconciler.KindCommunity, TypeID: "community-1"}
}

func transfer(tx string, logIndex uint, from, to, value int64) reconciler.Event {
	return reconciler.Event{
		Kind:     reconciler.EventTransfer,
		TxHash:   tx,
		LogIndex: logIndex,
		From:     from,
		To:       to,
		Amount:   amount(value),
	}
}

type fixture struct {
	t       *testing.T
	st      *State
	store   *storeMock
	admins  *adminsMock
	stat    *reconciler.Statistic
	matcher *Matcher
}

func newFixture(
	t *testing.T,
	snapshot *reconciler.Snapshot,
	events []reconciler.Event,
	persisted []*reconciler.Donation,
	fix bool,
) *fixture {
	st := NewState(snapshot, events, persisted)
	store := newStoreMock()
	admins := newAdminsMock()
	testRecords(admins)
	stat := &reconciler.Statistic{}
	matcher := NewMatcher(testLog(), st, store, admins, nil, testTokens(), stat, fix)
	return &fixture{
		t:       t,
		st:      st,
		store:   store,
		admins:  admins,
		stat:    stat,
		matcher: matcher,
	}
}

func (f *fixture) replay(events []reconciler.Event) error {
	driver := NewDriver(testLog(), f.matcher, NewCanceler(testLog(), f.st), f.stat)
	return driver.Run(context.Background(), events)
}
