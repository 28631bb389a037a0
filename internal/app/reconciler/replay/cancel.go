// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package replay

import (
	"github.com/sirupsen/logrus"

	"github.com/pledger/reconciler/internal/app/reconciler"
)

// Canceler cascades a project cancellation one level down the admin
// hierarchy and voids non-terminal donations. The cancellation mark is kept
// in memory only; persisting it is a collaborator concern.
type Canceler struct {
	log *logrus.Logger
	st  *State
}

func NewCanceler(log *logrus.Logger, st *State) *Canceler {
	return &Canceler{log: log, st: st}
}

// CancelProject voids the project's charged donations and those of its
// direct children. Grandchildren are not walked; the hierarchy is at most
// two levels deep in practice.
func (c *Canceler) CancelProject(projectID int64) {
	if admin := c.st.Admin(projectID); admin != nil {
		admin.Canceled = true
	}
	c.revertProjectDonations(projectID)

	for _, admin := range c.st.snapshot.Admins {
		if admin == nil || admin.ParentProject != projectID {
			continue
		}
		admin.Canceled = true
		c.revertProjectDonations(admin.ID)
	}
}

// revertProjectDonations forces every charged donation of the admin with a
// nonzero balance to Canceled. Donations already paying or paid keep their
// status; balances are left untouched.
func (c *Canceler) revertProjectDonations(projectID int64) {
	for _, d := range c.st.ownerCharged[projectID] {
		if d.AmountRemaining.IsZero() {
			continue
		}
		if d.Status == reconciler.StatusPaying || d.Status == reconciler.StatusPaid {
			continue
		}
		c.log.WithField("donation", d.ID).
			Debugf("canceled by project %d", projectID)
		d.Status = reconciler.StatusCanceled
	}
}
