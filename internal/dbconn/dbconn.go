// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package dbconn

import (
	"github.com/go-pg/pg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/configuration"
	"github.com/pledger/reconciler/internal/pkg/cycle"
)

func Connect(cfg configuration.DB, log *logrus.Logger) (*pg.DB, error) {
	opt, err := pg.ParseURL(cfg.URL)
	if err != nil {
		// pg.ParseURL uses standard url.Parse
		// which fills the url-string with password into error.
		// So we can't use errors.Wrap here.
		return nil, errors.New("failed to parse cfg.DB.URL")
	}
	opt.PoolSize = cfg.PoolSize

	db := pg.Connect(opt)
	cycle.UntilConnectionError(func() error {
		_, err := db.Exec("select 1")
		return err
	}, cfg.AttemptInterval, cfg.Attempts, log)
	return db, nil
}
