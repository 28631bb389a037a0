// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package main

import (
	"flag"

	"github.com/go-pg/migrations"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/configuration"
	"github.com/pledger/reconciler/internal/dbconn"
)

var migrationDir = flag.String("dir", "scripts/migrations", "directory with migrations")
var doInit = flag.Bool("init", false, "perform db init (for empty db)")

func main() {
	flag.Parse()

	log := logrus.New()
	cfg := configuration.Load(log)

	db, err := dbconn.Connect(cfg.DB, log)
	if err != nil {
		log.Fatal(err.Error())
	}
	migrationCollection := migrations.NewCollection()
	if *doInit {
		_, _, err := migrationCollection.Run(db, "init")
		if err != nil {
			log.Fatal(errors.Wrap(err, "Could not init migrations"))
		}
	}

	err = migrationCollection.DiscoverSQLMigrations(*migrationDir)
	if err != nil {
		log.Fatal(errors.Wrap(err, "Failed to read migrations"))
	}

	_, _, err = migrationCollection.Run(db, "up")
	if err != nil {
		log.Fatal(errors.Wrap(err, "Could not migrate"))
	}
	log.Info("migrated successfully!")
}
