package access

import (
	"context"
	"testing"

	"payouts-controlplane/pkg/errutil"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ownedRow struct {
	ID       string `gorm:"column:id;primaryKey"`
	WinnerID string `gorm:"column:winner_id"`
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry()
	require.NoError(t, err)
	return r
}

func TestVerifyAccess(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	admin := Actor{UserID: "a1", Roles: []string{RoleAdmin}}
	user := Actor{UserID: "u1", Roles: []string{RoleUser}}
	stranger := Actor{UserID: "x", Roles: []string{"guest"}}

	require.NoError(t, r.VerifyAccess(ctx, admin, ResourceWinning, ActionUpdate, "u1"))
	require.NoError(t, r.VerifyAccess(ctx, user, ResourceWinning, ActionRead, "u1"))
	require.NoError(t, r.VerifyAccess(ctx, user, ResourceWithdrawal, ActionCreate, "u1"))

	err := r.VerifyAccess(ctx, user, ResourceWinning, ActionRead, "u2")
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	err = r.VerifyAccess(ctx, user, ResourceWinning, ActionUpdate, "u1")
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	err = r.VerifyAccess(ctx, stranger, ResourceWinning, ActionRead, "x")
	require.True(t, errutil.Is(err, errutil.StatusForbidden))
}

func TestScopeComposesRoles(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:access_scope?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ownedRow{}))
	require.NoError(t, db.Create([]*ownedRow{{ID: "1", WinnerID: "u1"}, {ID: "2", WinnerID: "u2"}}).Error)

	r := newRegistry(t)
	ctx := context.Background()

	count := func(actor Actor) int64 {
		var n int64
		require.NoError(t, db.Model(&ownedRow{}).Scopes(r.Scope(ctx, actor)).Count(&n).Error)
		return n
	}

	require.Equal(t, int64(1), count(Actor{UserID: "u1", Roles: []string{RoleUser}}))
	require.Equal(t, int64(2), count(Actor{UserID: "u1", Roles: []string{RoleUser, RoleAdmin}}))
	require.Equal(t, int64(0), count(Actor{UserID: "u1", Roles: []string{"guest"}}))
}

func TestParseRoles(t *testing.T) {
	require.Equal(t, []string{"admin", "user"}, ParseRoles(" Admin, ,user"))
	require.Nil(t, ParseRoles(""))
}
