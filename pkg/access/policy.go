package access

import (
	"context"

	"payouts-controlplane/pkg/errutil"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdminPolicy sees and edits everything.
type AdminPolicy struct{}

func (AdminPolicy) Role() string { return RoleAdmin }

// ServicePolicy is used by trusted internal callers.
type ServicePolicy struct{}

func (ServicePolicy) Role() string { return RoleService }

// OwnerPolicy limits end users to records they own.
type OwnerPolicy struct {
	Column string
}

func (OwnerPolicy) Role() string { return RoleUser }

func (p OwnerPolicy) ApplyFilter(_ context.Context, actor Actor, db *gorm.DB) *gorm.DB {
	return db.Where(clause.Eq{Column: clause.Column{Name: p.Column}, Value: actor.UserID})
}

func (OwnerPolicy) VerifyAccess(_ context.Context, actor Actor, ownerID string) error {
	if actor.UserID == "" || actor.UserID != ownerID {
		return errutil.Forbidden("record belongs to another user", nil)
	}
	return nil
}
