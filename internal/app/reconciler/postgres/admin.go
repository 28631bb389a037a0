// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package postgres

import (
	"context"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/app/reconciler"
	"github.com/pledger/reconciler/internal/models"
	"github.com/pledger/reconciler/observability"
)

// AdminStorage resolves pledge_admins rows by on-chain admin id and
// bootstraps giver rows for addresses the directory has never seen.
type AdminStorage struct {
	log          *logrus.Logger
	errorCounter prometheus.Counter
	db           orm.DB
}

func NewAdminStorage(obs *observability.Observability, db orm.DB) *AdminStorage {
	errorCounter := obs.Counter(prometheus.CounterOpts{
		Name: "reconciler_admin_storage_error_counter",
		Help: "",
	})
	return &AdminStorage{
		log:          obs.Log(),
		errorCounter: errorCounter,
		db:           db,
	}
}

// ByChainID returns the directory record for a chain admin id, or (nil, nil)
// when no record exists.
func (s *AdminStorage) ByChainID(ctx context.Context, chainID int64) (*reconciler.AdminRecord, error) {
	row := &models.PledgeAdmin{}
	err := s.db.Model(row).Where("chain_id = ?", chainID).Select()
	if err == pg.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.errorCounter.Inc()
		return nil, errors.Wrapf(err, "failed to fetch pledge admin %d", chainID)
	}
	return adminRecordFromRow(row), nil
}

// CreateGiver inserts a giver directory row keyed by the giver's address.
func (s *AdminStorage) CreateGiver(ctx context.Context, chainID int64, address string) (*reconciler.AdminRecord, error) {
	row := &models.PledgeAdmin{
		ChainID: chainID,
		Kind:    string(reconciler.KindGiver),
		TypeID:  address,
	}
	_, err := s.db.Model(row).Returning("id").Insert()
	if err != nil {
		s.errorCounter.Inc()
		return nil, errors.Wrapf(err, "failed to create giver admin %d", chainID)
	}
	s.log.WithFields(logrus.Fields{
		"admin":   chainID,
		"address": address,
	}).Info("created giver admin record")
	return adminRecordFromRow(row), nil
}

func adminRecordFromRow(row *models.PledgeAdmin) *reconciler.AdminRecord {
	return &reconciler.AdminRecord{
		ID:      row.ID,
		ChainID: row.ChainID,
		Kind:    reconciler.AdminKind(row.Kind),
		TypeID:  row.TypeID,
	}
}
