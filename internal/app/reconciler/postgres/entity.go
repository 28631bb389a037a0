// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package postgres

import (
	"context"

	"github.com/go-pg/pg/orm"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/app/reconciler"
	"github.com/pledger/reconciler/internal/app/reconciler/rollup"
	"github.com/pledger/reconciler/internal/models"
	"github.com/pledger/reconciler/observability"
)

// EntityStorage reads entities with their per-token counters and writes back
// recomputed aggregates.
type EntityStorage struct {
	log          *logrus.Logger
	errorCounter prometheus.Counter
	db           orm.DB
}

func NewEntityStorage(obs *observability.Observability, db orm.DB) *EntityStorage {
	errorCounter := obs.Counter(prometheus.CounterOpts{
		Name: "reconciler_entity_storage_error_counter",
		Help: "",
	})
	return &EntityStorage{
		log:          obs.Log(),
		errorCounter: errorCounter,
		db:           db,
	}
}

func (s *EntityStorage) Entities(ctx context.Context) ([]*rollup.Entity, error) {
	var rows []models.Entity
	err := s.db.Model(&rows).Order("id ASC").Select()
	if err != nil {
		s.errorCounter.Inc()
		return nil, errors.Wrap(err, "failed to fetch entities")
	}
	var counterRows []models.DonationCounter
	err = s.db.Model(&counterRows).Order("id ASC").Select()
	if err != nil {
		s.errorCounter.Inc()
		return nil, errors.Wrap(err, "failed to fetch donation counters")
	}

	counters := make(map[int64][]rollup.Counter)
	for i := range counterRows {
		c, err := counterFromRow(&counterRows[i])
		if err != nil {
			s.errorCounter.Inc()
			return nil, err
		}
		counters[counterRows[i].EntityID] = append(counters[counterRows[i].EntityID], c)
	}

	entities := make([]*rollup.Entity, 0, len(rows))
	for i := range rows {
		e, err := entityFromRow(&rows[i])
		if err != nil {
			s.errorCounter.Inc()
			return nil, err
		}
		e.Counters = counters[e.ID]
		entities = append(entities, e)
	}
	return entities, nil
}

// UpdateCounters replaces the whole counter set of an entity. The rollup
// computes counters from scratch so a replace keeps them consistent.
func (s *EntityStorage) UpdateCounters(ctx context.Context, entityID int64, counters []rollup.Counter) error {
	_, err := s.db.Model(&models.DonationCounter{}).Where("entity_id = ?", entityID).Delete()
	if err != nil {
		s.errorCounter.Inc()
		return errors.Wrapf(err, "failed to drop counters of entity %d", entityID)
	}
	for _, c := range counters {
		row := &models.DonationCounter{
			EntityID:       entityID,
			Symbol:         c.Symbol,
			Name:           c.Name,
			Address:        c.Address,
			Decimals:       c.Decimals,
			TotalDonated:   c.TotalDonated.String(),
			CurrentBalance: c.CurrentBalance.String(),
			DonationCount:  c.DonationCount,
		}
		_, err := s.db.Model(row).Insert()
		if err != nil {
			s.errorCounter.Inc()
			return errors.Wrapf(err, "failed to insert counter %s of entity %d", c.Symbol, entityID)
		}
	}
	return nil
}

func (s *EntityStorage) UpdateEntity(ctx context.Context, entityID int64, fullyFunded bool, peopleCount int) error {
	res, err := s.db.Model(&models.Entity{ID: entityID}).
		WherePK().
		Set("fully_funded = ?", fullyFunded).
		Set("people_count = ?", peopleCount).
		Update()
	if err != nil {
		s.errorCounter.Inc()
		return errors.Wrapf(err, "failed to update entity %d", entityID)
	}
	if res.RowsAffected() == 0 {
		s.log.WithField("entity", entityID).Warn("entity update affected no rows")
	}
	return nil
}

func entityFromRow(row *models.Entity) (*rollup.Entity, error) {
	maxAmount := decimal.Zero
	if row.MaxAmount != "" {
		var err error
		maxAmount, err = decimal.NewFromString(row.MaxAmount)
		if err != nil {
			return nil, errors.Wrapf(err, "entity %d carries a malformed max amount %q", row.ID, row.MaxAmount)
		}
	}
	return &rollup.Entity{
		ID:           row.ID,
		Kind:         reconciler.AdminKind(row.Kind),
		TypeID:       row.TypeID,
		Canceled:     row.Status == statusCanceled,
		TokenAddress: row.TokenAddress,
		MaxAmount:    maxAmount,
		FullyFunded:  row.FullyFunded,
		PeopleCount:  row.PeopleCount,
	}, nil
}

func counterFromRow(row *models.DonationCounter) (rollup.Counter, error) {
	totalDonated, err := decimal.NewFromString(row.TotalDonated)
	if err != nil {
		return rollup.Counter{}, errors.Wrapf(err, "counter %d carries a malformed total %q", row.ID, row.TotalDonated)
	}
	currentBalance, err := decimal.NewFromString(row.CurrentBalance)
	if err != nil {
		return rollup.Counter{}, errors.Wrapf(err, "counter %d carries a malformed balance %q", row.ID, row.CurrentBalance)
	}
	return rollup.Counter{
		Symbol:         row.Symbol,
		Name:           row.Name,
		Address:        row.Address,
		Decimals:       row.Decimals,
		TotalDonated:   totalDonated,
		CurrentBalance: currentBalance,
		DonationCount:  row.DonationCount,
	}, nil
}

// statusCanceled matches the entity status the platform writes on
// cancellation.
const statusCanceled = "Canceled"
