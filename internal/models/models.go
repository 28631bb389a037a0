// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package models

import "time"

type Donation struct {
	tableName struct{} `sql:"donations"` //nolint: unused,structcheck

	ID                    int64     `sql:"id,pk"`
	PledgeID              int64     `sql:"pledge_id,notnull"`
	OwnerID               int64     `sql:"owner_id,notnull"`
	OwnerKind             string    `sql:"owner_kind"`
	OwnerTypeID           string    `sql:"owner_type_id"`
	DelegateID            int64     `sql:"delegate_id"`
	DelegateKind          string    `sql:"delegate_kind"`
	DelegateTypeID        string    `sql:"delegate_type_id"`
	IntendedProjectID     int64     `sql:"intended_project_id"`
	IntendedProjectKind   string    `sql:"intended_project_kind"`
	IntendedProjectTypeID string    `sql:"intended_project_type_id"`
	Status                string    `sql:"status,notnull"`
	Amount                string    `sql:"amount,notnull"`
	AmountRemaining       string    `sql:"amount_remaining,notnull"`
	TxHash                string    `sql:"tx_hash"`
	HomeTxHash            string    `sql:"home_tx_hash"`
	GiverAddress          string    `sql:"giver_address"`
	TokenAddress          string    `sql:"token_address"`
	ParentDonations       []int64   `sql:"parent_donations,array"`
	IsReturn              bool      `sql:"is_return,notnull"`
	Mined                 bool      `sql:"mined,notnull"`
	SystemCreated         bool      `sql:"system_created,notnull"`
	LessThanCutoff        bool      `sql:"less_than_cutoff,notnull"`
	USDValue              string    `sql:"usd_value"`
	CreatedAt             time.Time `sql:"created_at"`
	UpdatedAt             time.Time `sql:"updated_at"`
}

type PledgeAdmin struct {
	tableName struct{} `sql:"pledge_admins"` //nolint: unused,structcheck

	ID      int64  `sql:"id,pk"`
	ChainID int64  `sql:"chain_id,notnull"`
	Kind    string `sql:"kind,notnull"`
	TypeID  string `sql:"type_id"`
}

// Entity is a delegate collection, campaign or trace the rollup recomputes
// per-token counters for.
type Entity struct {
	tableName struct{} `sql:"entities"` //nolint: unused,structcheck

	ID           int64  `sql:"id,pk"`
	Kind         string `sql:"kind,notnull"`
	TypeID       string `sql:"type_id,notnull"`
	Status       string `sql:"status"`
	TokenAddress string `sql:"token_address"`
	MaxAmount    string `sql:"max_amount"`
	FullyFunded  bool   `sql:"fully_funded,notnull"`
	PeopleCount  int    `sql:"people_count,notnull"`
}

type DonationCounter struct {
	tableName struct{} `sql:"donation_counters"` //nolint: unused,structcheck

	ID             int64  `sql:"id,pk"`
	EntityID       int64  `sql:"entity_id,notnull"`
	Symbol         string `sql:"symbol,notnull"`
	Name           string `sql:"name"`
	Address        string `sql:"address"`
	Decimals       int    `sql:"decimals,notnull"`
	TotalDonated   string `sql:"total_donated,notnull"`
	CurrentBalance string `sql:"current_balance,notnull"`
	DonationCount  int    `sql:"donation_count,notnull"`
}

type ConversionRate struct {
	tableName struct{} `sql:"conversion_rates"` //nolint: unused,structcheck

	ID        int64  `sql:"id,pk"`
	Symbol    string `sql:"symbol,notnull"`
	Currency  string `sql:"currency,notnull"`
	Timestamp int64  `sql:"ts,notnull"`
	Rate      string `sql:"rate,notnull"`
}
