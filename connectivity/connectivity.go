// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package connectivity

import (
	"github.com/go-pg/pg"

	"github.com/pledger/reconciler/configuration"
	"github.com/pledger/reconciler/internal/dbconn"
	"github.com/pledger/reconciler/observability"
)

func Make(cfg *configuration.Configuration, obs *observability.Observability) *Connectivity {
	log := obs.Log()
	return &Connectivity{
		pg: func() *pg.DB {
			db, err := dbconn.Connect(cfg.DB, log)
			if err != nil {
				log.Fatal(err.Error())
			}
			return db
		}(),
	}
}

type Connectivity struct {
	pg *pg.DB
}

func (c *Connectivity) PG() *pg.DB {
	return c.pg
}
