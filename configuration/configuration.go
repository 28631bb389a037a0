// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package configuration

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/pkg/cycle"
)

type Configuration struct {
	LogLevel  string
	LogFormat string
	DB        DB
	Chain     Chain
	Replay    Replay
	API       API
	Tokens    []Token
}

type DB struct {
	URL      string
	PoolSize int
	Attempts cycle.Limit
	// Interval between failed store attempts
	AttemptInterval time.Duration
}

// Chain points at the snapshot and event-log dumps produced by the
// acquisition job.
type Chain struct {
	StateFile  string
	EventsFile string
}

type Replay struct {
	// DryRun computes and logs all discrepancies without writing.
	DryRun bool
	// MaxDuration aborts the run when the wall clock exceeds it.
	MaxDuration time.Duration
}

type API struct {
	// Healthcheck and metrics listen address.
	Listen string
}

// Token describes a whitelisted transfer token. ForeignAddress is the
// address the pledge contract sees, Address the one the application uses.
type Token struct {
	Symbol         string
	Name           string
	Address        string
	ForeignAddress string
	Decimals       int
}

func Default() *Configuration {
	return &Configuration{
		LogLevel:  logrus.InfoLevel.String(),
		LogFormat: "text",
		DB: DB{
			URL:             "postgres://postgres@localhost/postgres?sslmode=disable",
			PoolSize:        20,
			Attempts:        5,
			AttemptInterval: 3 * time.Second,
		},
		Chain: Chain{
			StateFile:  ".artifacts/pledge_state.json",
			EventsFile: ".artifacts/pledge_events.json",
		},
		Replay: Replay{
			DryRun:      true,
			MaxDuration: 2 * time.Hour,
		},
		API: API{
			Listen: ":0",
		},
		Tokens: []Token{
			{
				Symbol:         "ETH",
				Name:           "Ether",
				Address:        "0x0000000000000000000000000000000000000000",
				ForeignAddress: "0x0000000000000000000000000000000000000000",
				Decimals:       18,
			},
		},
	}
}
