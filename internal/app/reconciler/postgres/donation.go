// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package postgres

import (
	"context"
	"time"

	"github.com/go-pg/pg/orm"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/app/reconciler"
	"github.com/pledger/reconciler/internal/models"
	"github.com/pledger/reconciler/observability"
)

// DonationStorage reads and writes the donations table. All mutations are
// idempotent keyed by donation id.
type DonationStorage struct {
	log          *logrus.Logger
	errorCounter prometheus.Counter
	db           orm.DB
}

func NewDonationStorage(obs *observability.Observability, db orm.DB) *DonationStorage {
	errorCounter := obs.Counter(prometheus.CounterOpts{
		Name: "reconciler_donation_storage_error_counter",
		Help: "",
	})
	return &DonationStorage{
		log:          obs.Log(),
		errorCounter: errorCounter,
		db:           db,
	}
}

// Fetch loads the whole persisted ledger ordered by id.
func (s *DonationStorage) Fetch(ctx context.Context) ([]*reconciler.Donation, error) {
	var rows []models.Donation
	err := s.db.Model(&rows).Order("id ASC").Select()
	if err != nil {
		s.errorCounter.Inc()
		return nil, errors.Wrap(err, "failed to fetch donations")
	}
	donations := make([]*reconciler.Donation, 0, len(rows))
	for i := range rows {
		d, err := donationFromRow(&rows[i])
		if err != nil {
			s.errorCounter.Inc()
			return nil, err
		}
		donations = append(donations, d)
	}
	return donations, nil
}

func (s *DonationStorage) Insert(ctx context.Context, d *reconciler.Donation) (int64, error) {
	row := donationRow(d)
	row.UpdatedAt = time.Now().UTC()
	_, err := s.db.Model(row).Returning("id").Insert()
	if err != nil {
		s.errorCounter.Inc()
		return 0, errors.Wrap(err, "failed to insert donation")
	}
	return row.ID, nil
}

func (s *DonationStorage) Update(ctx context.Context, id int64, upd reconciler.DonationUpdate) error {
	q := s.db.Model(&models.Donation{ID: id}).WherePK()
	touched := false
	if upd.Status != nil {
		q = q.Set("status = ?", string(*upd.Status))
		touched = true
	}
	if upd.PledgeID != nil {
		q = q.Set("pledge_id = ?", *upd.PledgeID)
		touched = true
	}
	if upd.Mined != nil {
		q = q.Set("mined = ?", *upd.Mined)
		touched = true
	}
	if upd.IsReturn != nil {
		q = q.Set("is_return = ?", *upd.IsReturn)
		touched = true
	}
	if upd.AmountRemaining != nil {
		q = q.Set("amount_remaining = ?", upd.AmountRemaining.String())
		touched = true
	}
	if upd.LessThanCutoff != nil {
		q = q.Set("less_than_cutoff = ?", *upd.LessThanCutoff)
		touched = true
	}
	if upd.ParentDonations != nil {
		q = q.Set("parent_donations = ?", parentArray(upd.ParentDonations))
		touched = true
	}
	if upd.USDValue != nil {
		q = q.Set("usd_value = ?", upd.USDValue.String())
		touched = true
	}
	if !touched {
		return nil
	}
	q = q.Set("updated_at = ?", time.Now().UTC())
	res, err := q.Update()
	if err != nil {
		s.errorCounter.Inc()
		return errors.Wrapf(err, "failed to update donation %d", id)
	}
	if res.RowsAffected() == 0 {
		s.log.WithField("donation", id).Warn("donation update affected no rows")
	}
	return nil
}

func (s *DonationStorage) Delete(ctx context.Context, id int64) error {
	_, err := s.db.Model(&models.Donation{ID: id}).WherePK().Delete()
	if err != nil {
		s.errorCounter.Inc()
		return errors.Wrapf(err, "failed to delete donation %d", id)
	}
	return nil
}

func donationRow(d *reconciler.Donation) *models.Donation {
	return &models.Donation{
		ID:                    d.ID,
		PledgeID:              d.PledgeID,
		OwnerID:               d.OwnerID,
		OwnerKind:             string(d.OwnerKind),
		OwnerTypeID:           d.OwnerTypeID,
		DelegateID:            d.DelegateID,
		DelegateKind:          string(d.DelegateKind),
		DelegateTypeID:        d.DelegateTypeID,
		IntendedProjectID:     d.IntendedProjectID,
		IntendedProjectKind:   string(d.IntendedProjectKind),
		IntendedProjectTypeID: d.IntendedProjectTypeID,
		Status:                string(d.Status),
		Amount:                d.Amount.String(),
		AmountRemaining:       d.AmountRemaining.String(),
		TxHash:                d.TxHash,
		HomeTxHash:            d.HomeTxHash,
		GiverAddress:          d.GiverAddress,
		TokenAddress:          d.TokenAddress,
		ParentDonations:       parentArray(d.ParentDonations),
		IsReturn:              d.IsReturn,
		Mined:                 d.Mined,
		SystemCreated:         d.SystemCreated,
		LessThanCutoff:        d.LessThanCutoff,
		USDValue:              d.USDValue.String(),
		CreatedAt:             d.CreatedAt,
	}
}

func donationFromRow(row *models.Donation) (*reconciler.Donation, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return nil, errors.Wrapf(err, "donation %d carries a malformed amount %q", row.ID, row.Amount)
	}
	remaining, err := decimal.NewFromString(row.AmountRemaining)
	if err != nil {
		return nil, errors.Wrapf(err, "donation %d carries a malformed remaining amount %q", row.ID, row.AmountRemaining)
	}
	usdValue := decimal.Zero
	if row.USDValue != "" {
		usdValue, err = decimal.NewFromString(row.USDValue)
		if err != nil {
			return nil, errors.Wrapf(err, "donation %d carries a malformed display value %q", row.ID, row.USDValue)
		}
	}
	return &reconciler.Donation{
		ID:                    row.ID,
		Amount:                amount,
		AmountRemaining:       remaining,
		PledgeID:              row.PledgeID,
		OwnerID:               row.OwnerID,
		OwnerKind:             reconciler.AdminKind(row.OwnerKind),
		OwnerTypeID:           row.OwnerTypeID,
		DelegateID:            row.DelegateID,
		DelegateKind:          reconciler.AdminKind(row.DelegateKind),
		DelegateTypeID:        row.DelegateTypeID,
		IntendedProjectID:     row.IntendedProjectID,
		IntendedProjectKind:   reconciler.AdminKind(row.IntendedProjectKind),
		IntendedProjectTypeID: row.IntendedProjectTypeID,
		Status:                reconciler.Status(row.Status),
		ParentDonations:       row.ParentDonations,
		GiverAddress:          row.GiverAddress,
		TokenAddress:          row.TokenAddress,
		TxHash:                row.TxHash,
		HomeTxHash:            row.HomeTxHash,
		IsReturn:              row.IsReturn,
		Mined:                 row.Mined,
		SystemCreated:         row.SystemCreated,
		LessThanCutoff:        row.LessThanCutoff,
		USDValue:              usdValue,
		CreatedAt:             row.CreatedAt,
	}, nil
}

func parentArray(parents []int64) []int64 {
	if parents == nil {
		return []int64{}
	}
	return parents
}
