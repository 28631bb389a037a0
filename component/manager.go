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
	"github.com/pledger/reconciler/observability"
)

// Manager runs the reconciliation as one batch pass: load, replay, resolve,
// roll up, report. Stop aborts an in-flight pass.
type Manager struct {
	cfg    *configuration.Configuration
	log    *logrus.Logger
	run    func(ctx context.Context) *reconciler.Statistic
	stop   func()
	router *Router

	cancel context.CancelFunc
	done   chan struct{}
}

func Prepare(log *logrus.Logger) *Manager {
	cfg := configuration.Load(log)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		log.Warnf("unknown log level %q, staying on %s", cfg.LogLevel, log.GetLevel())
	} else {
		log.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	obs := observability.Make(log)
	conn := connectivity.Make(cfg, obs)
	router := NewRouter(cfg, obs)
	return &Manager{
		cfg:    cfg,
		log:    log,
		run:    makeRunner(cfg, obs, conn),
		stop:   makeStopper(obs, conn, router),
		router: router,
		done:   make(chan struct{}),
	}
}

func (m *Manager) Start() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Replay.MaxDuration)
	m.cancel = cancel
	go func() {
		m.router.Start()
		defer m.stop()
		defer close(m.done)
		defer cancel()

		stat := m.run(ctx)
		if ctx.Err() == context.DeadlineExceeded {
			m.log.Errorf("reconciliation exceeded the %s deadline", m.cfg.Replay.MaxDuration)
		}
		m.report(stat)
	}()
}

func (m *Manager) Stop() {
	m.cancel()
	<-m.done
}

// Done is closed once the pass has finished and the components are stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) report(stat *reconciler.Statistic) {
	entry := m.log.WithFields(logrus.Fields{
		"processedEvents":          stat.ProcessedEvents,
		"createdDonations":         stat.CreatedDonations,
		"updatedDonations":         stat.UpdatedDonations,
		"deletedDonations":         stat.DeletedDonations,
		"correctedFailedDonations": stat.CorrectedFailedDonations,
		"createdAdmins":            stat.CreatedAdmins,
		"updatedEntities":          stat.UpdatedEntities,
		"spentTime":                stat.ReplaySpentTime,
	})
	if stat.FatalReason != "" {
		entry.Errorf("reconciliation aborted: %s", stat.FatalReason)
		return
	}
	if m.cfg.Replay.DryRun {
		entry.Info("dry run finished, nothing was written")
		return
	}
	entry.Info("reconciliation finished")
}

func makeStopper(obs *observability.Observability, conn *connectivity.Connectivity, router *Router) func() {
	log := obs.Log()
	return func() {
		router.Stop()
		if err := conn.PG().Close(); err != nil {
			log.Error(err)
		}
	}
}
