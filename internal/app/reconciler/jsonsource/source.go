// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

// Package jsonsource reads the chain snapshot and event log from the JSON
// cache files the acquisition job writes. Numbers in those files are decimal
// strings, arrays are id-indexed with a null first element.
package jsonsource

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/configuration"
	"github.com/pledger/reconciler/internal/app/reconciler"
	"github.com/pledger/reconciler/observability"
)

type Source struct {
	log        *logrus.Logger
	stateFile  string
	eventsFile string
}

func NewSource(obs *observability.Observability, cfg *configuration.Configuration) *Source {
	return &Source{
		log:        obs.Log(),
		stateFile:  cfg.Chain.StateFile,
		eventsFile: cfg.Chain.EventsFile,
	}
}

type pledgeJSON struct {
	Amount          string             `json:"amount"`
	Owner           string             `json:"owner"`
	Delegates       []delegateJSON     `json:"delegates"`
	IntendedProject string             `json:"intendedProject"`
	OldPledge       string             `json:"oldPledge"`
	Token           string             `json:"token"`
	PledgeState     string             `json:"pledgeState"`
}

type delegateJSON struct {
	ID string `json:"id"`
}

type adminJSON struct {
	Type          string `json:"type"`
	Addr          string `json:"addr"`
	Name          string `json:"name"`
	ParentProject string `json:"parentProject"`
	Canceled      bool   `json:"canceled"`
}

type stateJSON struct {
	Pledges []*pledgeJSON `json:"pledges"`
	Admins  []*adminJSON  `json:"admins"`
}

type eventJSON struct {
	Event            string          `json:"event"`
	TransactionHash  string          `json:"transactionHash"`
	BlockNumber      uint64          `json:"blockNumber"`
	TransactionIndex uint            `json:"transactionIndex"`
	LogIndex         uint            `json:"logIndex"`
	Timestamp        int64           `json:"timestamp"`
	ReturnValues     returnValueJSON `json:"returnValues"`
}

type returnValueJSON struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	IDProject string `json:"idProject"`
}

func (s *Source) Snapshot(ctx context.Context) (*reconciler.Snapshot, error) {
	raw, err := ioutil.ReadFile(s.stateFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read state file %s", s.stateFile)
	}
	state := &stateJSON{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, errors.Wrapf(err, "failed to parse state file %s", s.stateFile)
	}

	snapshot := &reconciler.Snapshot{
		Pledges: make([]*reconciler.Pledge, len(state.Pledges)),
		Admins:  make([]*reconciler.Admin, len(state.Admins)),
	}
	for i, p := range state.Pledges {
		if p == nil {
			continue
		}
		pledge, err := convertPledge(int64(i), p)
		if err != nil {
			return nil, err
		}
		snapshot.Pledges[i] = pledge
	}
	for i, a := range state.Admins {
		if a == nil {
			continue
		}
		snapshot.Admins[i] = convertAdmin(int64(i), a)
	}
	s.log.WithFields(logrus.Fields{
		"pledges": len(snapshot.Pledges),
		"admins":  len(snapshot.Admins),
	}).Info("loaded chain snapshot")
	return snapshot, nil
}

// Events returns the Transfer and CancelProject log sorted by (block,
// transaction index, log index) with (txHash, logIndex) duplicates dropped.
func (s *Source) Events(ctx context.Context) ([]reconciler.Event, error) {
	raw, err := ioutil.ReadFile(s.eventsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read events file %s", s.eventsFile)
	}
	var rows []eventJSON
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, errors.Wrapf(err, "failed to parse events file %s", s.eventsFile)
	}

	type eventKey struct {
		txHash   string
		logIndex uint
	}
	seen := make(map[eventKey]struct{}, len(rows))
	events := make([]reconciler.Event, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		kind := reconciler.EventKind(row.Event)
		if kind != reconciler.EventTransfer && kind != reconciler.EventCancelProject {
			continue
		}
		key := eventKey{txHash: row.TransactionHash, logIndex: row.LogIndex}
		if _, ok := seen[key]; ok {
			s.log.WithFields(logrus.Fields{
				"tx":       row.TransactionHash,
				"logIndex": row.LogIndex,
			}).Warn("dropped duplicated event")
			continue
		}
		seen[key] = struct{}{}

		ev, err := convertEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Before(events[j]) })
	s.log.WithField("events", len(events)).Info("loaded chain events")
	return events, nil
}

func convertPledge(id int64, p *pledgeJSON) (*reconciler.Pledge, error) {
	owner, err := chainID(p.Owner)
	if err != nil {
		return nil, errors.Wrapf(err, "pledge %d carries a malformed owner", id)
	}
	intended, err := chainID(p.IntendedProject)
	if err != nil {
		return nil, errors.Wrapf(err, "pledge %d carries a malformed intended project", id)
	}
	oldPledge, err := chainID(p.OldPledge)
	if err != nil {
		return nil, errors.Wrapf(err, "pledge %d carries a malformed old pledge", id)
	}
	state, err := convertPledgeState(p.PledgeState)
	if err != nil {
		return nil, errors.Wrapf(err, "pledge %d", id)
	}
	delegates := make([]int64, 0, len(p.Delegates))
	for _, d := range p.Delegates {
		delegateID, err := chainID(d.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "pledge %d carries a malformed delegate", id)
		}
		delegates = append(delegates, delegateID)
	}
	return &reconciler.Pledge{
		ID:              id,
		Owner:           owner,
		Delegates:       delegates,
		IntendedProject: intended,
		Token:           p.Token,
		State:           state,
		OldPledge:       oldPledge,
	}, nil
}

func convertPledgeState(raw string) (reconciler.PledgeState, error) {
	switch raw {
	case "Pledged", "0":
		return reconciler.StatePledged, nil
	case "Paying", "1":
		return reconciler.StatePaying, nil
	case "Paid", "2":
		return reconciler.StatePaid, nil
	default:
		return reconciler.StatePledged, errors.Errorf("unknown pledge state %q", raw)
	}
}

// convertAdmin maps the chain registry entry onto an application admin.
// The chain knows Giver/Delegate/Project; a project with a parent is a
// trace, a top level project is a campaign.
func convertAdmin(id int64, a *adminJSON) *reconciler.Admin {
	parent, err := chainID(a.ParentProject)
	if err != nil {
		parent = 0
	}
	var kind reconciler.AdminKind
	switch a.Type {
	case "Giver":
		kind = reconciler.KindGiver
	case "Delegate":
		kind = reconciler.KindCommunity
	case "Project":
		if parent != 0 {
			kind = reconciler.KindTrace
		} else {
			kind = reconciler.KindCampaign
		}
	}
	return &reconciler.Admin{
		ID:            id,
		Kind:          kind,
		Address:       a.Addr,
		Name:          a.Name,
		ParentProject: parent,
		Canceled:      a.Canceled,
	}
}

func convertEvent(row *eventJSON) (reconciler.Event, error) {
	ev := reconciler.Event{
		Kind:        reconciler.EventKind(row.Event),
		TxHash:      row.TransactionHash,
		BlockNumber: row.BlockNumber,
		TxIndex:     row.TransactionIndex,
		LogIndex:    row.LogIndex,
	}
	if row.Timestamp != 0 {
		ev.Time = time.Unix(row.Timestamp, 0).UTC()
	}
	switch ev.Kind {
	case reconciler.EventTransfer:
		from, err := chainID(row.ReturnValues.From)
		if err != nil {
			return reconciler.Event{}, errors.Wrapf(err, "event %s carries a malformed source", row.TransactionHash)
		}
		to, err := chainID(row.ReturnValues.To)
		if err != nil {
			return reconciler.Event{}, errors.Wrapf(err, "event %s carries a malformed destination", row.TransactionHash)
		}
		amount, err := decimal.NewFromString(row.ReturnValues.Amount)
		if err != nil {
			return reconciler.Event{}, errors.Wrapf(err, "event %s carries a malformed amount", row.TransactionHash)
		}
		ev.From = from
		ev.To = to
		ev.Amount = amount
	case reconciler.EventCancelProject:
		projectID, err := chainID(row.ReturnValues.IDProject)
		if err != nil {
			return reconciler.Event{}, errors.Wrapf(err, "event %s carries a malformed project id", row.TransactionHash)
		}
		ev.ProjectID = projectID
	}
	return ev, nil
}

func chainID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
