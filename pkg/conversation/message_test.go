package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserMessageIsFinal(t *testing.T) {
	msg := NewUserMessage("hello")
	require.Equal(t, RoleUser, msg.Role)
	require.Equal(t, StatusFinal, msg.Status)
	require.Equal(t, "hello", msg.Content)
	require.NotEqual(t, NullMessageID, msg.ID)
}

func TestNewPendingMessageIsEmptyAssistant(t *testing.T) {
	msg := NewPendingMessage()
	require.Equal(t, RoleAssistant, msg.Role)
	require.Equal(t, StatusPending, msg.Status)
	require.Empty(t, msg.Content)
	require.True(t, msg.Pending())
}

func TestMessageJSONRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := NewUserMessage("look at this",
		WithTime(ts),
		WithImages([]*ImageContent{
			{ImageName: "cat.png", MediaType: "image/png", ImageContent: []byte{1, 2, 3}},
		}),
	)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msg.Role, decoded.Role)
	assert.Equal(t, msg.Content, decoded.Content)
	assert.Equal(t, msg.Status, decoded.Status)
	assert.True(t, msg.Time.Equal(decoded.Time))
	require.Len(t, decoded.Images, 1)
	assert.Equal(t, "cat.png", decoded.Images[0].ImageName)
	assert.Equal(t, []byte{1, 2, 3}, decoded.Images[0].ImageContent)
}

func TestNewImageContentFromLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixel.png")
	require.NoError(t, os.WriteFile(path, []byte("not-really-a-png"), 0644))

	img, err := NewImageContentFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pixel.png", img.ImageName)
	assert.Equal(t, "image/png", img.MediaType)
	assert.Equal(t, []byte("not-really-a-png"), img.ImageContent)
}

func TestNewImageContentRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0644))

	_, err := NewImageContentFromFile(path)
	require.Error(t, err)
}

func TestNewImageContentFromURL(t *testing.T) {
	img, err := NewImageContentFromFile("https://example.com/images/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/images/cat.png", img.ImageURL)
	assert.Equal(t, "cat.png", img.ImageName)
	assert.Empty(t, img.ImageContent)
}

func TestMessageCloneIsDeep(t *testing.T) {
	msg := NewUserMessage("original", WithImages([]*ImageContent{
		{ImageName: "a.png", ImageContent: []byte{1}},
	}))

	clone := msg.Clone()
	clone.Content = "changed"
	clone.Images[0].ImageName = "b.png"
	clone.Images[0].ImageContent[0] = 9

	assert.Equal(t, "original", msg.Content)
	assert.Equal(t, "a.png", msg.Images[0].ImageName)
	assert.Equal(t, byte(1), msg.Images[0].ImageContent[0])
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "short", DeriveTitle("short"))
	assert.Equal(t, "Plan a trip to Japan and also ",
		DeriveTitle("Plan a trip to Japan and also see the sights"))
	assert.Len(t, []rune(DeriveTitle("日本への旅行を計画して、観光もしたいです。あと温泉も楽しみたい。")), TitleMaxLength)
}
