package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-walker/internal/database"
	"focus-walker/internal/database/contracttest"
	"focus-walker/internal/models"
)

func sampleEntry() *models.CheckpointLogEntry {
	return &models.CheckpointLogEntry{
		ID:                 "e-1",
		Label:              "Riverside",
		Note:               "stretch",
		Timestamp:          time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		DistanceMarkMeters: 833,
	}
}

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := New(context.Background(), client, "test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreContract(t *testing.T) {
	contracttest.RunDataStore(t, func(t *testing.T) (database.DataStore, func()) {
		store, _ := setupTestStore(t)
		return store, nil
	})
}

func TestNewClientEmptyAddr(t *testing.T) {
	assert.Nil(t, NewClient("", ""))

	client := NewClient("localhost:6379", "")
	require.NotNil(t, client)
	_ = client.Close()
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestNewUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	_, err := New(context.Background(), client, "")
	assert.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Missions().Upsert(ctx, contracttest.SampleMission("m-1", time.Now().UTC())))
	require.NoError(t, store.CheckpointLogs().Append(ctx, "m-1", sampleEntry()))

	assert.True(t, mr.Exists("test:missions"))
	assert.True(t, mr.Exists("test:logs:m-1"))

	fields, err := mr.HKeys("test:missions")
	require.NoError(t, err)
	assert.Equal(t, []string{"m-1"}, fields)
}

func TestHealthCheckAfterServerStops(t *testing.T) {
	store, mr := setupTestStore(t)

	require.NoError(t, store.HealthCheck(context.Background()))
	mr.Close()
	assert.Error(t, store.HealthCheck(context.Background()))
}
