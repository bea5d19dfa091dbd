package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/sirosfoundation/go-esocial/internal/storage"
)

var _ storage.Store = (*Store)(nil)

func TestListQuery(t *testing.T) {
	assert.Equal(t, bson.M{}, listQuery(nil))
	assert.Equal(t, bson.M{
		"nr_insc": "12345678000190",
		"status":  storage.StatusSent,
	}, listQuery(&storage.EventFilter{NrInsc: "12345678000190", Status: storage.StatusSent}))
}

func TestUpdateDoc(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

	doc := updateDoc(&storage.StatusUpdate{Status: storage.StatusSigned, SignedXML: "<x/>"}, now)
	assert.Equal(t, storage.StatusSigned, doc["status"])
	assert.Equal(t, "<x/>", doc["signed_xml"])
	assert.Equal(t, now, doc["signed_at"])
	assert.NotContains(t, doc, "sent_at")
	assert.NotContains(t, doc, "protocol")

	doc = updateDoc(&storage.StatusUpdate{Status: storage.StatusRejected, ResponseCode: "401"}, now)
	assert.Equal(t, "401", doc["response_code"])
	assert.Equal(t, now, doc["sent_at"])
	assert.NotContains(t, doc, "signed_xml")
}

// TestStore_RoundTrip runs against a live server when MONGODB_TEST_URI is set.
func TestStore_RoundTrip(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewStore(ctx, &Config{URI: uri, Database: "esocial_test", Collection: "events_" + time.Now().Format("150405")})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.events.Drop(context.Background())
		_ = s.Close(context.Background())
	})

	rec := &storage.EventRecord{EventType: "S-1000", NrInsc: "12345678000190"}
	require.NoError(t, s.CreateEvent(ctx, rec))

	require.NoError(t, s.UpdateEventStatus(ctx, rec.ID, &storage.StatusUpdate{Status: storage.StatusSent, Protocol: "1.2.3"}))
	got, err := s.GetEvent(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSent, got.Status)
	assert.Equal(t, "1.2.3", got.Protocol)

	list, err := s.ListEvents(ctx, &storage.EventFilter{NrInsc: "12345678000190"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateEventStatus(ctx, "missing", &storage.StatusUpdate{Status: storage.StatusError}), storage.ErrNotFound)
}
