package user

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func runRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	missing, err := repo.GetByPublicKey(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	u1, err := repo.FindOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, u1.ID)
	assert.Equal(t, "alice", u1.PublicKey)

	u2, err := repo.FindOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, u2.ID)

	got, err := repo.GetByPublicKey(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u1.ID, got.ID)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := repo.FindOrCreate(ctx, "bob")
			if assert.NoError(t, err) {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMemoryRepo(t *testing.T) {
	runRepositoryContract(t, NewMemoryRepo())
}

func TestUserRepoMongo(t *testing.T) {
	uri := os.Getenv("RELAY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("RELAY_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	db := client.Database(fmt.Sprintf("relay_users_%d", time.Now().UnixNano()))
	t.Cleanup(func() { db.Drop(context.Background()) })

	repo := NewUserRepo(db)
	require.NoError(t, repo.EnsureIndexes(ctx))
	runRepositoryContract(t, repo)
}
