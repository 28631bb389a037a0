// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package reconciler

// PledgeState is the raw on-chain lifecycle state of a pledge.
type PledgeState int

const (
	StatePledged PledgeState = 0
	StatePaying  PledgeState = 1
	StatePaid    PledgeState = 2
)

// Pledge is a read-only snapshot entry of the on-chain escrow registry.
// Pledge id 0 is the "external" sentinel: transfers from pledge 0 inject
// fresh funds, donations parked at pledge 0 are the failed bucket.
type Pledge struct {
	ID              int64
	Owner           int64
	Delegates       []int64
	IntendedProject int64
	Token           string
	State           PledgeState
	// OldPledge references the prior pledge version when funds were
	// re-delegated.
	OldPledge int64
}

// Delegated reports whether the pledge currently sits with a delegate.
func (p *Pledge) Delegated() bool {
	return len(p.Delegates) > 0
}

// Snapshot is the pledge/admin state the event source hands over, indexed by
// id; index 0 is nil on both slices.
type Snapshot struct {
	Pledges []*Pledge
	Admins  []*Admin
}

func (s *Snapshot) Pledge(id int64) *Pledge {
	if id <= 0 || id >= int64(len(s.Pledges)) {
		return nil
	}
	return s.Pledges[id]
}

func (s *Snapshot) Admin(id int64) *Admin {
	if id <= 0 || id >= int64(len(s.Admins)) {
		return nil
	}
	return s.Admins[id]
}
