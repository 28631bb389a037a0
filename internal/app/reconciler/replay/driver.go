// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/app/reconciler"
)

// Driver walks the ordered event log and dispatches each event to the
// matcher or the canceler. A fatal error aborts the run before the failing
// event leaves any persisted effect.
type Driver struct {
	log      *logrus.Logger
	matcher  *Matcher
	canceler *Canceler
	stat     *reconciler.Statistic
}

func NewDriver(log *logrus.Logger, matcher *Matcher, canceler *Canceler, stat *reconciler.Statistic) *Driver {
	return &Driver{
		log:      log,
		matcher:  matcher,
		canceler: canceler,
		stat:     stat,
	}
}

func (d *Driver) Run(ctx context.Context, events []reconciler.Event) error {
	start := time.Now()
	defer func() {
		d.stat.ReplaySpentTime = time.Since(start)
	}()

	for i, ev := range events {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "replay interrupted")
		default:
		}

		if i > 0 && ev.Before(events[i-1]) {
			return Fatalf("event log out of order at index %d (tx %s)", i, ev.TxHash)
		}

		switch ev.Kind {
		case reconciler.EventTransfer:
			d.log.Debugf("transfer from %d to %d amount %s (tx %s, log %d)", ev.From, ev.To, ev.Amount, ev.TxHash, ev.LogIndex)
			if err := d.matcher.ApplyTransfer(ctx, ev, false); err != nil {
				return err
			}
		case reconciler.EventCancelProject:
			d.log.Debugf("cancel project %d (tx %s)", ev.ProjectID, ev.TxHash)
			d.canceler.CancelProject(ev.ProjectID)
		default:
			// admin bootstrap events belong to another collaborator
		}
		d.stat.ProcessedEvents++
	}
	return nil
}
