// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package reconciler

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventTransfer      EventKind = "Transfer"
	EventCancelProject EventKind = "CancelProject"
)

// Event is one entry of the totally ordered chain log. Transfer events carry
// From/To/Amount, CancelProject events carry ProjectID.
type Event struct {
	Kind        EventKind
	TxHash      string
	BlockNumber uint64
	TxIndex     uint
	LogIndex    uint
	Time        time.Time

	From   int64
	To     int64
	Amount decimal.Decimal

	ProjectID int64
}

// Before orders events by (blockNumber, transactionIndex, logIndex). Replay
// correctness depends on this order; the matcher queues are order sensitive.
func (e Event) Before(other Event) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	if e.TxIndex != other.TxIndex {
		return e.TxIndex < other.TxIndex
	}
	return e.LogIndex < other.LogIndex
}
