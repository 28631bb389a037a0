// Copyright 2021 Pledger Network Ltd.
// All rights reserved.
// This material is licensed under the Pledger License version 1.0,
// available at https://github.com/pledger/reconciler/blob/master/LICENSE.md.

package reconciler

// AdminKind tells who controls a pledge destination.
type AdminKind string

const (
	KindGiver     AdminKind = "giver"
	KindCommunity AdminKind = "community"
	KindCampaign  AdminKind = "campaign"
	KindTrace     AdminKind = "trace"
)

// IsProject reports whether the admin kind is a project-shaped entity,
// i.e. something a CancelProject event can target.
func (k AdminKind) IsProject() bool {
	return k == KindCampaign || k == KindTrace
}

// Admin is a read-only snapshot entry of the on-chain admin registry.
// Canceled is the only mutable field; it is maintained in memory by the
// cancellation propagator and never persisted here.
type Admin struct {
	ID            int64
	Kind          AdminKind
	Address       string
	Name          string
	ParentProject int64
	Canceled      bool
}

// AdminRecord is the persisted directory entry (pledge_admins row) that maps
// a chain admin id onto an application entity.
type AdminRecord struct {
	ID      int64
	ChainID int64
	Kind    AdminKind
	TypeID  string
}
