package store

import (
	"path/filepath"
	"testing"
	"time"

	"codesquad/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func sampleSnapshots() []session.Snapshot {
	ts := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	return []session.Snapshot{
		{
			ID:   "s1",
			Name: "Squad",
			Mode: "squad",
			Messages: []session.MessageSnapshot{
				{Sender: "ai", Content: "Welcome to your new **Squad** session! How can I help?", Timestamp: ts},
				{Sender: "user", Content: "build a CLI", Timestamp: ts.Add(time.Minute)},
				{Sender: "ai", Content: "On it. ", Timestamp: ts.Add(2 * time.Minute),
					Interaction: &session.InteractionPrompt{Prompt: "Which language?"}},
			},
		},
		{
			ID:          "s2",
			Name:        "Build",
			Mode:        "build",
			IsDriving:   true,
			DrivingGoal: "finish the parser",
			Journey:     nil,
		},
	}
}

func TestSaveAllLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := sampleSnapshots()

	require.NoError(t, s.SaveAll(want))
	got, err := s.Load()
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "s2", got[1].ID)
	assert.Equal(t, "finish the parser", got[1].DrivingGoal)

	require.Len(t, got[0].Messages, 3)
	require.NotNil(t, got[0].Messages[2].Interaction)
	assert.Equal(t, "Which language?", got[0].Messages[2].Interaction.Prompt)
	assert.True(t, got[0].Messages[0].Timestamp.Equal(want[0].Messages[0].Timestamp))
}

func TestSaveAllReplaces(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveAll(sampleSnapshots()))
	require.NoError(t, s.SaveAll([]session.Snapshot{{ID: "only", Mode: "learn"}}))

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].ID)
}

func TestLoadEmptyDatabase(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadMalformedSnapshotDegradesToEmpty(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveAll(sampleSnapshots()))

	_, err := s.db.Exec(`UPDATE sessions SET snapshot = '{"id": broken' WHERE session_id = 's2'`)
	require.NoError(t, err)

	got, err := s.Load()
	require.NoError(t, err, "malformed data must not fail startup")
	assert.Empty(t, got)
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveAll(sampleSnapshots()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
