package store

import (
	"context"
	"testing"
	"time"

	"commerce-sync/feature/catalog/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	trail := NewAuditTrail(s.DB(), nil)
	ctx := context.Background()

	ref := models.RecordRef{Kind: models.KindProduct, ExternalID: 100}
	require.NoError(t, trail.Append(ctx, &models.AuditEntry{
		RecordKind:   ref.Kind,
		ExternalID:   ref.ExternalID,
		FieldChanged: "stock_quantity",
		OldValue:     "10",
		NewValue:     "7",
		Actor:        "system-sync",
		ChangeSource: models.SourceSync,
		BatchID:      "run-1",
	}))
	require.NoError(t, trail.Append(ctx, &models.AuditEntry{
		RecordKind:   models.KindProduct,
		ExternalID:   200,
		FieldChanged: "regular_price",
		Actor:        "alice",
		ChangeSource: models.SourceManual,
		BatchID:      "edit-1",
	}))

	byRecord, err := trail.ForRecord(ctx, ref)
	require.NoError(t, err)
	require.Len(t, byRecord, 1)
	assert.Equal(t, "stock_quantity", byRecord[0].FieldChanged)
	assert.Equal(t, models.OutcomeSuccess, byRecord[0].Outcome)

	byBatch, err := trail.InBatch(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, byBatch, 1)

	byActor, err := trail.Between(ctx, time.Time{}, time.Time{}, AuditFilter{Actor: "alice"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, int64(200), byActor[0].ExternalID)

	bySource, err := trail.Between(ctx, time.Time{}, time.Time{}, AuditFilter{Source: models.SourceSync})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, int64(100), bySource[0].ExternalID)
}

func TestAuditMarkOutcome(t *testing.T) {
	s := newTestStore(t)
	trail := NewAuditTrail(s.DB(), nil)
	ctx := context.Background()

	entry := &models.AuditEntry{
		RecordKind:   models.KindProduct,
		ExternalID:   100,
		FieldChanged: "stock_quantity",
		Actor:        "alice",
		ChangeSource: models.SourceManual,
		Outcome:      models.OutcomePending,
	}
	require.NoError(t, trail.Append(ctx, entry))

	require.NoError(t, trail.MarkOutcome(ctx, entry.ID, models.OutcomeFailed, "source_unreachable"))

	entries, err := trail.ForRecord(ctx, models.RecordRef{Kind: models.KindProduct, ExternalID: 100})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OutcomeFailed, entries[0].Outcome)
	assert.Equal(t, "source_unreachable", entries[0].ErrorCode)
}
