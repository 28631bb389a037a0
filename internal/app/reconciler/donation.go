// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package reconciler

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the donation lifecycle status kept in the ledger.
type Status string

const (
	StatusWaiting   Status = "Waiting"
	StatusToApprove Status = "ToApprove"
	StatusCommitted Status = "Committed"
	StatusPaying    Status = "Paying"
	StatusPaid      Status = "Paid"
	StatusCanceled  Status = "Canceled"
	StatusRejected  Status = "Rejected"
	StatusFailed    Status = "Failed"
)

// Donation is the working copy of a ledger record threaded through replay.
// Amount is immutable. AmountRemaining is the balance recomputed by the
// matcher; SavedAmountRemaining and SavedStatus hold the persisted values the
// conflict resolver diffs against. ID 0 marks a record that exists only in
// memory (created during a dry run).
type Donation struct {
	ID                    int64
	Amount                decimal.Decimal
	AmountRemaining       decimal.Decimal
	SavedAmountRemaining  decimal.Decimal
	PledgeID              int64
	OwnerID               int64
	OwnerKind             AdminKind
	OwnerTypeID           string
	DelegateID            int64
	DelegateKind          AdminKind
	DelegateTypeID        string
	IntendedProjectID     int64
	IntendedProjectKind   AdminKind
	IntendedProjectTypeID string
	Status                Status
	SavedStatus           Status
	ParentDonations       []int64
	GiverAddress          string
	TokenAddress          string
	TxHash                string
	HomeTxHash            string
	IsReturn              bool
	Mined                 bool
	SystemCreated         bool
	LessThanCutoff        bool
	USDValue              decimal.Decimal
	CreatedAt             time.Time
}

// Terminal reports whether the donation can never hold or move funds again.
func (d *Donation) Terminal() bool {
	switch d.Status {
	case StatusPaid, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

// DonationUpdate is the partial field set a correction writes. Nil members
// are left untouched.
type DonationUpdate struct {
	Status          *Status
	PledgeID        *int64
	Mined           *bool
	IsReturn        *bool
	AmountRemaining *decimal.Decimal
	LessThanCutoff  *bool
	ParentDonations []int64
	USDValue        *decimal.Decimal
}
