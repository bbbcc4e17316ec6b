package content

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/lorebase/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBlobStore struct {
	blobs      map[string][]byte
	failPut    map[string]error
	failDelete map[string]error
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{
		blobs:      map[string][]byte{},
		failPut:    map[string]error{},
		failDelete: map[string]error{},
	}
}

func (m *memoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := m.blobs[key]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return value, nil
}

func (m *memoryBlobStore) Put(ctx context.Context, key string, value []byte) error {
	if err, ok := m.failPut[key]; ok {
		return err
	}
	m.blobs[key] = value
	return nil
}

func (m *memoryBlobStore) Delete(ctx context.Context, key string) error {
	if err, ok := m.failDelete[key]; ok {
		return err
	}
	delete(m.blobs, key)
	return nil
}

func (m *memoryBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range m.blobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func TestStoreSyncField(t *testing.T) {
	ctx := context.Background()
	campaignID := uuid.New()
	blobs := newMemoryBlobStore()

	store, err := NewStore(blobs, nil, nil)
	require.NoError(t, err, "Expected NewStore to not return an error")

	t.Run("Sync writes directly to approved", func(t *testing.T) {
		key, err := store.SyncCharacter(ctx, campaignID, "char_keth_background", "Background", "Keth grew up on the docks", nil)
		assert.NoError(t, err, "Expected Sync to not return an error")
		assert.Contains(t, key, "/context/approved/", "Expected user-authored fields to skip staging")

		var obj model.ContentObject
		require.NoError(t, json.Unmarshal(blobs.blobs[key], &obj))
		assert.Equal(t, model.ContentSourceUserAuthored, obj.SourceType)
		assert.Equal(t, "character", obj.Kind)
		assert.False(t, obj.UpdatedAt.IsZero(), "Expected UpdatedAt to be set")
	})

	t.Run("Second sync overwrites the same object", func(t *testing.T) {
		key1, err := store.SyncCharacterSheet(ctx, campaignID, "sheet_keth_str", "Strength", "14", nil)
		require.NoError(t, err)
		key2, err := store.SyncCharacterSheet(ctx, campaignID, "sheet_keth_str", "Strength", "16", nil)
		require.NoError(t, err)
		assert.Equal(t, key1, key2, "Expected a deterministic key per object id")

		var obj model.ContentObject
		require.NoError(t, json.Unmarshal(blobs.blobs[key2], &obj))
		assert.Equal(t, "16", obj.Text, "Expected the latest write to win")
	})
}

func TestStoreStagingLifecycle(t *testing.T) {
	ctx := context.Background()
	campaignID := uuid.New()
	blobs := newMemoryBlobStore()

	store, err := NewStore(blobs, nil, nil)
	require.NoError(t, err)

	t.Run("AI-detected shards land in staging", func(t *testing.T) {
		key, obj, err := store.CreateStagingShard(ctx, campaignID, "note_1", "Harbor rumor", "The harbor watch doubled overnight", "rumor", 0.8, "")
		assert.NoError(t, err, "Expected CreateStagingShard to not return an error")
		assert.Contains(t, key, "/context/staging/", "Expected AI content to never skip staging")
		assert.Equal(t, model.ContentSourceAIDetected, obj.SourceType)

		results, err := store.Search(ctx, campaignID, "harbor watch", 10)
		assert.NoError(t, err)
		assert.Empty(t, results, "Expected staged content to be invisible to search")
	})

	t.Run("Conversational shards get their own namespace", func(t *testing.T) {
		key, _, err := store.CreateStagingShard(ctx, campaignID, "note_2", "Chat note", "Keth mentioned a hidden cove", "npc", 0.7, "msg_42")
		assert.NoError(t, err)
		assert.Contains(t, key, "/context/staging/conversation/", "Expected conversational context under its own prefix")
	})

	t.Run("Approve moves the object and makes it searchable", func(t *testing.T) {
		stagingKey := objectKey(campaignID, model.PartitionStaging, "note_1", false)
		approvedKey, err := store.Approve(ctx, stagingKey)
		assert.NoError(t, err, "Expected Approve to not return an error")
		assert.Contains(t, approvedKey, "/context/approved/")

		_, stillStaged := blobs.blobs[stagingKey]
		assert.False(t, stillStaged, "Expected the staging copy to be gone")

		results, err := store.Search(ctx, campaignID, "harbor watch", 10)
		assert.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "note_1", results[0].ID)
	})

	t.Run("Approve keeps the conversation namespace", func(t *testing.T) {
		stagingKey := objectKey(campaignID, model.PartitionStaging, "note_2", true)
		approvedKey, err := store.Approve(ctx, stagingKey)
		assert.NoError(t, err)
		assert.Contains(t, approvedKey, "/context/approved/conversation/")
	})

	t.Run("Approve of a non-staging key fails", func(t *testing.T) {
		approvedKey := objectKey(campaignID, model.PartitionApproved, "note_1", false)
		_, err := store.Approve(ctx, approvedKey)
		assert.Error(t, err, "Expected Approve to refuse keys outside staging")
	})

	t.Run("Reject retains the object outside search scope", func(t *testing.T) {
		stagingKey, _, err := store.CreateStagingShard(ctx, campaignID, "note_3", "Bad note", "Completely made up detail", "rumor", 0.3, "")
		require.NoError(t, err)

		err = store.Reject(ctx, stagingKey)
		assert.NoError(t, err, "Expected Reject to not return an error")

		_, stillStaged := blobs.blobs[stagingKey]
		assert.False(t, stillStaged, "Expected the staging copy to be gone")

		rejectedKey := objectKey(campaignID, model.PartitionRejected, "note_3", false)
		_, retained := blobs.blobs[rejectedKey]
		assert.True(t, retained, "Expected the rejected copy to be retained for audit")

		results, err := store.Search(ctx, campaignID, "made up detail", 10)
		assert.NoError(t, err)
		for _, result := range results {
			assert.NotEqual(t, "note_3", result.ID, "Expected rejected content to be invisible to search")
		}
	})
}

func TestStoreApproveDeleteFailure(t *testing.T) {
	ctx := context.Background()
	campaignID := uuid.New()
	blobs := newMemoryBlobStore()

	store, err := NewStore(blobs, nil, nil)
	require.NoError(t, err)

	stagingKey, _, err := store.CreateStagingShard(ctx, campaignID, "note_stuck", "Stuck note", "The ferryman takes no coin", "rumor", 0.9, "")
	require.NoError(t, err)

	blobs.failDelete[stagingKey] = errors.New("connection reset")

	t.Run("Failed staging delete still reports success", func(t *testing.T) {
		approvedKey, err := store.Approve(ctx, stagingKey)
		assert.NoError(t, err, "Expected Approve to succeed once the approved copy exists")
		assert.NotEmpty(t, approvedKey)

		_, stillStaged := blobs.blobs[stagingKey]
		assert.True(t, stillStaged, "Expected the stale staging copy to remain")
	})

	t.Run("Reconcile drops the stale staging copy", func(t *testing.T) {
		delete(blobs.failDelete, stagingKey)

		dropped, err := store.Reconcile(ctx, campaignID)
		assert.NoError(t, err, "Expected Reconcile to not return an error")
		assert.Equal(t, 1, dropped)

		_, stillStaged := blobs.blobs[stagingKey]
		assert.False(t, stillStaged, "Expected reconciliation to resolve in favor of approved")

		approvedKey := objectKey(campaignID, model.PartitionApproved, "note_stuck", false)
		_, approved := blobs.blobs[approvedKey]
		assert.True(t, approved, "Expected the approved copy to survive reconciliation")
	})
}

func TestStoreReconcileConversationNamespace(t *testing.T) {
	ctx := context.Background()
	campaignID := uuid.New()
	blobs := newMemoryBlobStore()

	store, err := NewStore(blobs, nil, nil)
	require.NoError(t, err)

	// A plain approved object and a conversation staging object sharing the
	// same id are different objects
	_, err = store.SyncField(ctx, campaignID, "note_dm", "note", "DM note", "The ferry runs at dawn", nil)
	require.NoError(t, err)

	stagingKey, _, err := store.CreateStagingShard(ctx, campaignID, "note_dm", "Chat note", "Keth asked about the ferry", "rumor", 0.7, "msg_77")
	require.NoError(t, err)

	dropped, err := store.Reconcile(ctx, campaignID)
	assert.NoError(t, err, "Expected Reconcile to not return an error")
	assert.Equal(t, 0, dropped, "Expected no reconciliation across namespaces")

	_, stillStaged := blobs.blobs[stagingKey]
	assert.True(t, stillStaged, "Expected the conversation staging object to survive")
}

func TestStoreSearch(t *testing.T) {
	ctx := context.Background()
	campaignID := uuid.New()

	t.Run("Lexical scoring without an embedder", func(t *testing.T) {
		store, err := NewStore(newMemoryBlobStore(), nil, nil)
		require.NoError(t, err)

		_, err = store.SyncField(ctx, campaignID, "field_harbor", "note", "Harbor", "The harbor shelters a dozen fishing boats", nil)
		require.NoError(t, err)
		_, err = store.SyncField(ctx, campaignID, "field_mine", "note", "Mine", "An abandoned silver mine east of town", nil)
		require.NoError(t, err)

		results, err := store.Search(ctx, campaignID, "harbor fishing boats", 10)
		assert.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "field_harbor", results[0].ID, "Expected best lexical match first")
	})

	t.Run("Embedding scoring with an embedder", func(t *testing.T) {
		// Toy embedder mapping texts about the harbor close to each other
		embedder := func(text string) ([]float32, error) {
			vec := make([]float32, 3)
			lowered := strings.ToLower(text)
			if strings.Contains(lowered, "harbor") {
				vec[0] = 1
			}
			if strings.Contains(lowered, "mine") {
				vec[1] = 1
			}
			vec[2] = 0.1
			return vec, nil
		}

		store, err := NewStore(newMemoryBlobStore(), embedder, nil)
		require.NoError(t, err)

		_, err = store.SyncField(ctx, campaignID, "field_harbor", "note", "Docks", "Ships moor at the harbor", nil)
		require.NoError(t, err)
		_, err = store.SyncField(ctx, campaignID, "field_mine", "note", "Digsite", "Tunnels of the old mine", nil)
		require.NoError(t, err)

		results, err := store.AISearch(ctx, campaignID, "where is the harbor", 10)
		assert.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "field_harbor", results[0].ID, "Expected cosine scoring to rank the harbor note first")
	})

	t.Run("Unembedded objects drop the query to lexical scoring", func(t *testing.T) {
		embedder := func(text string) ([]float32, error) {
			vec := make([]float32, 3)
			if strings.Contains(strings.ToLower(text), "harbor") {
				vec[0] = 1
			}
			vec[2] = 0.1
			return vec, nil
		}

		blobs := newMemoryBlobStore()
		store, err := NewStore(blobs, embedder, nil)
		require.NoError(t, err)

		_, err = store.SyncField(ctx, campaignID, "field_docks", "note", "Docks", "Ships moor at the harbor", nil)
		require.NoError(t, err)

		// An object written before the embedder was configured has no
		// embedding stored
		legacy := model.ContentObject{
			ID:    "field_ledger",
			Kind:  "note",
			Label: "Ledger",
			Text:  "the harbor ledger lists every vessel and captain",
		}
		data, err := json.Marshal(&legacy)
		require.NoError(t, err)
		require.NoError(t, blobs.Put(ctx, objectKey(campaignID, model.PartitionApproved, "field_ledger", false), data))

		results, err := store.Search(ctx, campaignID, "ledger captain", 10)
		assert.NoError(t, err)
		require.Len(t, results, 1, "Expected one scoring scale per query, not cosine and lexical mixed")
		assert.Equal(t, "field_ledger", results[0].ID)

		results, err = store.Search(ctx, campaignID, "quayside berth", 10)
		assert.NoError(t, err)
		assert.Empty(t, results, "Expected no cosine-only hits while a candidate lacks an embedding")
	})

	t.Run("Limit caps the result count", func(t *testing.T) {
		store, err := NewStore(newMemoryBlobStore(), nil, nil)
		require.NoError(t, err)

		for _, id := range []string{"a", "b", "c"} {
			_, err = store.SyncField(ctx, campaignID, "field_"+id, "note", "Note", "the harbor note "+id, nil)
			require.NoError(t, err)
		}

		results, err := store.Search(ctx, campaignID, "harbor", 2)
		assert.NoError(t, err)
		assert.Len(t, results, 2)
	})
}
