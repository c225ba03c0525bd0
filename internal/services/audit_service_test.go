package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campfirehq/campfire/internal/models"
)

func TestAuditLogAndList(t *testing.T) {
	f := newFixtures(t)
	user := f.createUser(t, "auditor")

	ctx := context.Background()
	require.NoError(t, f.audit.Log(ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   "community.join",
		Resource: "c-1",
		Result:   "success",
		Metadata: map[string]any{"role": "member"},
	}))
	require.NoError(t, f.audit.Log(ctx, AuditEntry{
		Action:   "invite.redeem",
		Resource: "i-1",
		Result:   "denied",
	}))

	require.Error(t, f.audit.Log(ctx, AuditEntry{Result: "success"}))
	require.Error(t, f.audit.Log(ctx, AuditEntry{Action: "x"}))

	all, total, err := f.audit.List(ctx, AuditListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, all, 2)

	joins, total, err := f.audit.List(ctx, AuditListOptions{Action: "community.join"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, joins, 1)
	require.NotNil(t, joins[0].UserID)
	require.Equal(t, user.ID, *joins[0].UserID)
	require.JSONEq(t, `{"role":"member"}`, joins[0].Metadata)

	byUser, _, err := f.audit.List(ctx, AuditListOptions{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
}

func TestAuditPruneBefore(t *testing.T) {
	f := newFixtures(t)

	ctx := context.Background()
	require.NoError(t, f.audit.Log(ctx, AuditEntry{Action: "old", Result: "success"}))
	require.NoError(t, f.audit.Log(ctx, AuditEntry{Action: "new", Result: "success"}))

	// Age one entry past the cutoff.
	require.NoError(t, f.db.Model(&models.AuditLog{}).
		Where("action = ?", "old").
		UpdateColumn("created_at", time.Now().AddDate(0, 0, -120)).Error)

	pruned, err := f.audit.PruneBefore(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	remaining, total, err := f.audit.List(ctx, AuditListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "new", remaining[0].Action)
}
