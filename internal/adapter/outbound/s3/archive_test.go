package s3

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkmeter/server/internal/model"
)

// --- Helpers ---

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	b.objects[r.URL.Path] = body
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTestArchive(t *testing.T, bucket *fakeBucket) *archive {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), &Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Bucket:          "ledger",
	})
	require.NoError(t, err)
	return NewArchive(client, "ledger", "deleted/").(*archive)
}

// --- Tests ---

func TestArchive_StoreSnapshot(t *testing.T) {
	ctx := context.Background()
	taken := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &model.AccountSnapshot{
		Account:      &model.Account{ID: 42, Username: "neo"},
		Interactions: []*model.Interaction{{ID: 1, AccountID: 42, Input: "hi", Output: "hello"}},
		TakenAt:      taken,
	}

	t.Run("writes json under account prefix", func(t *testing.T) {
		bucket := &fakeBucket{objects: map[string][]byte{}}
		a := newTestArchive(t, bucket)

		loc, err := a.StoreSnapshot(ctx, snap)
		require.NoError(t, err)
		assert.Equal(t, "s3://ledger/deleted/42/1709294400.json", loc)

		body, ok := bucket.objects["/ledger/deleted/42/1709294400.json"]
		require.True(t, ok)
		var got model.AccountSnapshot
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, int64(42), got.Account.ID)
		require.Len(t, got.Interactions, 1)
		assert.Equal(t, "hi", got.Interactions[0].Input)
	})

	t.Run("bucket failure", func(t *testing.T) {
		a := newTestArchive(t, &fakeBucket{objects: map[string][]byte{}, fail: true})

		_, err := a.StoreSnapshot(ctx, snap)
		assert.Error(t, err)
	})

	t.Run("empty snapshot", func(t *testing.T) {
		a := newTestArchive(t, &fakeBucket{objects: map[string][]byte{}})

		_, err := a.StoreSnapshot(ctx, &model.AccountSnapshot{})
		assert.Error(t, err)
	})
}

func TestNewClient_RequiresBucket(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{})
	assert.Error(t, err)
}
