package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotification_UnmarshalVariants(t *testing.T) {
	body := `[
		{"notification_id": "n1", "notification_type": "comment", "timestamp": "2024-05-01T10:00:00",
		 "data": {"post_id": "p1", "user_id": "u2", "username": "fido", "comment_id": "c9", "content": "good boy"}},
		{"notification_id": "n2", "notification_type": "reaction", "timestamp": "2024-05-01T09:00:00",
		 "data": {"post_id": "p1", "user_id": "u3", "reaction_type": "heart"}},
		{"notification_id": "n3", "notification_type": "scan", "timestamp": "2024-05-01T08:00:00",
		 "data": {"ip": "10.0.0.1", "city": "Gdańsk", "latitude": "54.35", "longitude": "18.64"}}
	]`

	var got []Notification
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 3)

	require.NotNil(t, got[0].Comment)
	assert.Equal(t, "good boy", got[0].Comment.Content)
	assert.Nil(t, got[0].Reaction)

	require.NotNil(t, got[1].Reaction)
	assert.Equal(t, ReactionHeart, got[1].Reaction.ReactionType)

	require.NotNil(t, got[2].Scan)
	assert.Equal(t, "Gdańsk", got[2].Scan.City)
	assert.Equal(t, "n3", got[2].ItemID())
}

func TestNotification_RejectsUnknownType(t *testing.T) {
	var n Notification
	err := json.Unmarshal([]byte(`{"notification_id": "n1", "notification_type": "poke", "data": {}}`), &n)
	assert.ErrorContains(t, err, "unknown type")
}

func TestNotification_MarshalKeepsBackendShape(t *testing.T) {
	n := Notification{
		ID:        "n3",
		Type:      NotificationScan,
		Timestamp: "2024-05-01T08:00:00",
		Scan:      &ScanNotice{City: "Kraków", Latitude: "50.06", Longitude: "19.94"},
	}
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"notification_id":"n3","notification_type":"scan","timestamp":"2024-05-01T08:00:00",
		"data":{"city":"Kraków","latitude":"50.06","longitude":"19.94"}}`, string(raw))
}

func TestNotification_AsComment(t *testing.T) {
	n := Notification{
		ID:        "n1",
		Type:      NotificationComment,
		Timestamp: "2024-05-01T10:00:00",
		Comment:   &CommentNotice{PostID: "p1", UserID: "u2", Username: "fido", CommentID: "c9", Content: "hi"},
	}
	c, ok := n.AsComment()
	require.True(t, ok)
	assert.Equal(t, Comment{
		ID: "c9", PostID: "p1", Content: "hi",
		User:      User{ID: "u2", Username: "fido"},
		Timestamp: "2024-05-01T10:00:00",
	}, c)

	_, ok = Notification{Type: NotificationScan}.AsComment()
	assert.False(t, ok)
}
