// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/models"
	"github.com/pledger/reconciler/observability"
)

const rateCacheSize = 4096

// RateStorage resolves token/USD conversion rates from the conversion_rates
// table. Rates are cached per symbol and hour since the replay asks for the
// same timestamps over and over.
type RateStorage struct {
	log          *logrus.Logger
	errorCounter prometheus.Counter
	db           orm.DB
	cache        *lru.Cache
}

func NewRateStorage(obs *observability.Observability, db orm.DB) *RateStorage {
	errorCounter := obs.Counter(prometheus.CounterOpts{
		Name: "reconciler_rate_storage_error_counter",
		Help: "",
	})
	cache, err := lru.New(rateCacheSize)
	if err != nil {
		obs.Log().WithField("err", err).Panic("failed to create rate cache")
	}
	return &RateStorage{
		log:          obs.Log(),
		errorCounter: errorCounter,
		db:           db,
		cache:        cache,
	}
}

// Rate returns the stored rate with the timestamp closest to the requested
// point in time.
func (s *RateStorage) Rate(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error) {
	key := fmt.Sprintf("%s:%d", symbol, at.Truncate(time.Hour).Unix())
	if cached, ok := s.cache.Get(key); ok {
		return cached.(decimal.Decimal), nil
	}

	row := &models.ConversionRate{}
	err := s.db.Model(row).
		Where("symbol = ?", symbol).
		Where("currency = ?", "USD").
		OrderExpr("abs(ts - ?) ASC", at.Unix()).
		Limit(1).
		Select()
	if err == pg.ErrNoRows {
		return decimal.Zero, errors.Errorf("no conversion rate for %s", symbol)
	}
	if err != nil {
		s.errorCounter.Inc()
		return decimal.Zero, errors.Wrapf(err, "failed to fetch conversion rate for %s", symbol)
	}
	rate, err := decimal.NewFromString(row.Rate)
	if err != nil {
		s.errorCounter.Inc()
		return decimal.Zero, errors.Wrapf(err, "rate %d carries a malformed value %q", row.ID, row.Rate)
	}
	s.cache.Add(key, rate)
	return rate, nil
}
