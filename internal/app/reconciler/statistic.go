// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package reconciler

import "time"

// Statistic is the run report handed to the notification collaborator.
type Statistic struct {
	ProcessedEvents          int
	CreatedDonations         int
	UpdatedDonations         int
	DeletedDonations         int
	CorrectedFailedDonations int
	CreatedAdmins            int
	UpdatedEntities          int
	ReplaySpentTime          time.Duration
	FatalReason              string
}
