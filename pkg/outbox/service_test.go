package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/guildworks/guildworks-backend/pkg/db/models"
	"github.com/guildworks/guildworks-backend/pkg/enums"
)

func newOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`).Error)
	return conn
}

type bonusRunData struct {
	BonusRunID uuid.UUID `json:"bonus_run_id"`
	Total      int64     `json:"total"`
}

func TestServiceEmitStoresEnvelope(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	aggregateID := uuid.New()
	actorID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventBonusRunExecuted,
			AggregateType: enums.AggregateTreasury,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{MembershipID: actorID, Tier: 5},
			Data:          bonusRunData{BonusRunID: uuid.New(), Total: 250000},
			Version:       1,
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, enums.EventBonusRunExecuted, row.EventType)
	assert.Equal(t, enums.AggregateTreasury, row.AggregateType)
	assert.Equal(t, aggregateID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.False(t, envelope.OccurredAt.IsZero())
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actorID, envelope.Actor.MembershipID)

	var data bonusRunData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, int64(250000), data.Total)
}

func TestServiceEmitRequiresTransaction(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), nil, DomainEvent{
		EventType:     enums.EventRoleAssigned,
		AggregateType: enums.AggregateOpportunity,
		AggregateID:   uuid.New(),
	})
	assert.Error(t, err)
}

func TestServiceEmitIfNotExistsDeduplicates(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	projectID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventAttributionCompleted,
		AggregateType: enums.AggregateProject,
		AggregateID:   projectID,
		Data:          map[string]any{"project_id": projectID.String()},
		Version:       1,
	}

	for i := 0; i < 2; i++ {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
