// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package component

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/configuration"
	"github.com/pledger/reconciler/connectivity"
	"github.com/pledger/reconciler/internal/app/reconciler"
	"github.com/pledger/reconciler/internal/app/reconciler/jsonsource"
	"github.com/pledger/reconciler/internal/app/reconciler/postgres"
	"github.com/pledger/reconciler/internal/app/reconciler/replay"
	"github.com/pledger/reconciler/internal/app/reconciler/rollup"
	"github.com/pledger/reconciler/observability"
)

func makeRunner(
	cfg *configuration.Configuration,
	obs *observability.Observability,
	conn *connectivity.Connectivity,
) func(ctx context.Context) *reconciler.Statistic {
	log := obs.Log()
	db := conn.PG()
	tokens := reconciler.NewTokenRegistry(cfg.Tokens)
	source := jsonsource.NewSource(obs, cfg)
	donations := postgres.NewDonationStorage(obs, db)
	admins := postgres.NewAdminStorage(obs, db)
	entities := postgres.NewEntityStorage(obs, db)
	oracle := postgres.NewRateStorage(obs, db)
	metrics := observability.MakeReplayMetrics(obs, "processed")
	fix := !cfg.Replay.DryRun

	return func(ctx context.Context) *reconciler.Statistic {
		stat := &reconciler.Statistic{}
		abort := func(err error) *reconciler.Statistic {
			stat.FatalReason = err.Error()
			return stat
		}

		snapshot, err := source.Snapshot(ctx)
		if err != nil {
			return abort(err)
		}
		events, err := source.Events(ctx)
		if err != nil {
			return abort(err)
		}
		persisted, err := donations.Fetch(ctx)
		if err != nil {
			return abort(err)
		}
		log.WithFields(logrus.Fields{
			"events":    len(events),
			"donations": len(persisted),
			"dryRun":    cfg.Replay.DryRun,
		}).Info("starting reconciliation pass")

		st := replay.NewState(snapshot, events, persisted)
		matcher := replay.NewMatcher(log, st, donations, admins, oracle, tokens, stat, fix)
		canceler := replay.NewCanceler(log, st)
		driver := replay.NewDriver(log, matcher, canceler, stat)
		if err := driver.Run(ctx, events); err != nil {
			return abort(err)
		}

		resolver := replay.NewResolver(log, st, donations, tokens, stat, fix)
		if err := resolver.Resolve(ctx); err != nil {
			return abort(err)
		}

		roll := rollup.NewRollup(obs, entities, tokens, stat, fix)
		if err := roll.Run(ctx, st.Ledger()); err != nil {
			return abort(err)
		}

		metrics.Events.Add(float64(stat.ProcessedEvents))
		metrics.Donations.Add(float64(stat.CreatedDonations + stat.UpdatedDonations + stat.DeletedDonations))
		metrics.Admins.Add(float64(stat.CreatedAdmins))
		metrics.Entities.Add(float64(stat.UpdatedEntities))
		return stat
	}
}
