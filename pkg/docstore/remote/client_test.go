package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.RemoteStoreConfig{
		URL:      server.URL,
		Database: "tillpoint",
		Username: "terminal",
		Password: "secret",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return client, server
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(config.RemoteStoreConfig{})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConfiguration))
}

func TestPingUsesBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_up", r.URL.Path)
		gotUser, gotPass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "terminal", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestGetMapsWireDocument(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tillpoint/item:coffee", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"_id":  "item:coffee",
			"_rev": "3-abc123def456",
			"type": "item",
			"id":   "item:coffee",
			"name": "Coffee",
		})
	}))

	doc, err := client.Get(context.Background(), "item:coffee")
	require.NoError(t, err)
	assert.Equal(t, "item:coffee", doc.ID)
	assert.Equal(t, "3-abc123def456", doc.Rev)
	assert.Equal(t, enums.DocTypeItem, doc.Type)

	// Underscore envelope fields stay out of the body.
	var body map[string]any
	require.NoError(t, json.Unmarshal(doc.Body, &body))
	assert.NotContains(t, body, "_id")
	assert.NotContains(t, body, "_rev")
	assert.Equal(t, "Coffee", body["name"])
}

func TestGetNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	}))

	_, err := client.Get(context.Background(), "item:missing")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestPutAdoptsAcknowledgedRev(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var wire map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wire))
		assert.Equal(t, "item:coffee", wire["_id"])
		assert.Equal(t, "item", wire["type"])
		assert.NotContains(t, wire, "_rev")

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "item:coffee", "rev": "1-deadbeef0000"})
	}))

	saved, err := client.Put(context.Background(), docstore.Document{
		ID:   "item:coffee",
		Type: enums.DocTypeItem,
		Body: []byte(`{"id":"item:coffee","name":"Coffee"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1-deadbeef0000", saved.Rev)
}

func TestPutStaleRevisionIsConflict(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
	}))

	doc := docstore.Document{ID: "item:coffee", Type: enums.DocTypeItem, Rev: "1-stale", Body: []byte(`{}`)}
	_, err := client.Put(context.Background(), doc)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))
}

func TestFindSendsSelector(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tillpoint/_find", r.URL.Path)
		var req struct {
			Selector map[string]string `json:"selector"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "invoice", req.Selector["type"])
		assert.Equal(t, "submitted", req.Selector["status"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"docs": []map[string]any{
				{"_id": "S01/T01/00001", "_rev": "1-abc", "type": "invoice", "status": "submitted"},
			},
		})
	}))

	docs, err := client.Find(context.Background(), docstore.Selector{
		Type:   enums.DocTypeInvoice,
		Status: "submitted",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "S01/T01/00001", docs[0].ID)
}

func TestChangesReturnsDocsAndCheckpoint(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tillpoint/_changes", r.URL.Path)
		assert.Equal(t, "5-checkpoint", r.URL.Query().Get("since"))
		assert.Equal(t, "true", r.URL.Query().Get("include_docs"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"doc": map[string]any{"_id": "item:a", "_rev": "2-aa", "type": "item"}},
				{"doc": map[string]any{"_id": "item:b", "_rev": "1-bb", "type": "item"}},
			},
			"last_seq": "7-checkpoint",
		})
	}))

	docs, last, err := client.Changes(context.Background(), "5-checkpoint")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "7-checkpoint", last)
}

func TestChangesNumericSeq(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[],"last_seq":12}`))
	}))

	_, last, err := client.Changes(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "12", last)
}

func TestEnsureIndexesPostsBothIndexes(t *testing.T) {
	var names []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tillpoint/_index", r.URL.Path)
		var req struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		names = append(names, req.Name)
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.EnsureIndexes(context.Background()))
	assert.Equal(t, []string{"idx-type", "idx-type-status"}, names)
}

func TestUnreachableIsConnectivity(t *testing.T) {
	client, err := NewClient(config.RemoteStoreConfig{
		URL:      "http://127.0.0.1:1",
		Database: "tillpoint",
		Timeout:  200 * time.Millisecond,
	})
	require.NoError(t, err)

	err = client.Ping(context.Background())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConnectivity))
}

func TestBearerTokenOverridesBasicAuth(t *testing.T) {
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(config.RemoteStoreConfig{
		URL:      server.URL,
		Database: "tillpoint",
		Username: "terminal",
		Password: "secret",
	}, WithToken("tok-123"))
	require.NoError(t, err)

	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "Bearer tok-123", header)
}
