package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recletter/internal/config"
	"recletter/internal/errors"
	"recletter/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = errors.NewLoggerTo(os.Stderr, slog.LevelWarn)

func sampleState() *State {
	state := NewState()
	state.Context.ApplicantName = "Maria Lopez"
	state.Context.CustomQuestions = []types.Question{{ID: "q1", Text: "How do you know Maria?"}}
	state.Drafts = []types.Draft{
		{ID: "b", Timestamp: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC), Content: "newer", Label: types.DraftLabelAI},
		{ID: "a", Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), Content: "older", Label: types.DraftLabelTemplate},
	}
	return state
}

func TestDecodeStateMigrations(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, s *State)
	}{
		{
			name: "v0 bare context with string questions",
			raw:  `{"applicantName":"Jo","targetProgramName":"Fellows","coreQualities":["Grit"],"specificAnecdotes":[],"customQuestions":["Why?","How?"]}`,
			check: func(t *testing.T, s *State) {
				assert.Equal(t, "Jo", s.Context.ApplicantName)
				assert.Empty(t, s.Context.CustomQuestions)
				assert.NotNil(t, s.Context.CustomQuestions)
				assert.Equal(t, []string{"Grit", "", ""}, s.Context.CoreQualities)
				assert.Equal(t, []string{"", "", ""}, s.Context.SpecificAnecdotes)
				assert.Empty(t, s.Drafts)
			},
		},
		{
			name: "v0 wrapped context keeps object questions",
			raw:  `{"context":{"applicantName":"Jo","customQuestions":[{"id":"x","text":"Tell me"}]}}`,
			check: func(t *testing.T, s *State) {
				require.Len(t, s.Context.CustomQuestions, 1)
				assert.Equal(t, "x", s.Context.CustomQuestions[0].ID)
			},
		},
		{
			name: "v1 drafts gain ids and labels",
			raw:  `{"schemaVersion":1,"context":{"applicantName":"Jo"},"drafts":[{"content":"Dear","timestamp":1735689600000},{"id":"keep","content":"x","label":"Manual Edit","timestamp":"2025-01-02T00:00:00Z"}]}`,
			check: func(t *testing.T, s *State) {
				require.Len(t, s.Drafts, 2)
				assert.NotEmpty(t, s.Drafts[0].ID)
				assert.Equal(t, types.DraftLabelTemplate, s.Drafts[0].Label)
				assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), s.Drafts[0].Timestamp.UTC())
				assert.Equal(t, "keep", s.Drafts[1].ID)
				assert.Equal(t, types.DraftLabelManual, s.Drafts[1].Label)
			},
		},
		{
			name: "missing context falls back to default",
			raw:  `{"schemaVersion":2,"drafts":[]}`,
			check: func(t *testing.T, s *State) {
				assert.Equal(t, "Jeffrey Clarke", s.Context.ApplicantName)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeState([]byte(tt.raw), testLogger)
			require.NoError(t, err)
			assert.Equal(t, SchemaVersion, s.SchemaVersion)
			tt.check(t, s)
		})
	}
}

func TestDecodeStateRejectsBadInput(t *testing.T) {
	_, err := DecodeState([]byte(`not json`), testLogger)
	assert.Error(t, err)

	_, err = DecodeState([]byte(`{"schemaVersion":99}`), testLogger)
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := EncodeState(sampleState())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"schemaVersion":2`)

	got, err := DecodeState(raw, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "Maria Lopez", got.Context.ApplicantName)
	assert.Len(t, got.Drafts, 2)
	assert.Equal(t, "b", got.Drafts[0].ID)
}

// exerciseStore runs the behaviour every backend must share
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	fresh, err := s.LoadState(ctx, "new-session")
	require.NoError(t, err)
	assert.Equal(t, "Jeffrey Clarke", fresh.Context.ApplicantName)
	assert.Empty(t, fresh.Drafts)

	require.NoError(t, s.SaveState(ctx, "s1", sampleState()))

	got, err := s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Maria Lopez", got.Context.ApplicantName)
	require.Len(t, got.Context.CustomQuestions, 1)
	require.Len(t, got.Drafts, 2)
	assert.Equal(t, "newer", got.Drafts[0].Content)
	assert.Equal(t, "older", got.Drafts[1].Content)

	// Saving again with one more draft appends
	got.Drafts = append([]types.Draft{{ID: "c", Timestamp: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Content: "newest", Label: types.DraftLabelManual}}, got.Drafts...)
	got.Context.ApplicantName = "Maria L."
	require.NoError(t, s.SaveState(ctx, "s1", got))

	again, err := s.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Maria L.", again.Context.ApplicantName)
	require.Len(t, again.Drafts, 3)
	assert.Equal(t, "c", again.Drafts[0].ID)

	_, err = s.LoadState(ctx, "../escape")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Error(t, s.SaveState(ctx, "", sampleState()))

	assert.NoError(t, s.Close())
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s, err := NewFileStore(dir, testLogger)
	require.NoError(t, err)
	exerciseStore(t, s)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temporary file left behind: %s", e.Name())
	}
}

func TestFileStoreReadsLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"applicantName":"Jo","customQuestions":["a","b"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.json"), []byte(legacy), 0o600))

	s, err := NewFileStore(dir, testLogger)
	require.NoError(t, err)
	got, err := s.LoadState(context.Background(), DefaultSessionID)
	require.NoError(t, err)
	assert.Equal(t, "Jo", got.Context.ApplicantName)
	assert.Empty(t, got.Context.CustomQuestions)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(testLogger))
}

func TestSQLStore(t *testing.T) {
	s, err := NewSQLStore(filepath.Join(t.TempDir(), "recletter.db"), testLogger)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	exerciseStore(t, s)
}

func TestRedisStoreUnreachable(t *testing.T) {
	_, err := NewRedisStore(config.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, testLogger)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStoreFailed))
}

func TestRedisStoreKey(t *testing.T) {
	s := &RedisStore{prefix: "recletter:"}
	assert.Equal(t, "recletter:session:default", s.Key(DefaultSessionID))
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(config.StoreConfig{Backend: "memory"}, testLogger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(config.StoreConfig{Backend: "file", Path: t.TempDir()}, testLogger)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(config.StoreConfig{Backend: "etcd"}, testLogger)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func TestValidSessionID(t *testing.T) {
	assert.True(t, ValidSessionID("default"))
	assert.True(t, ValidSessionID("user_42-a"))
	assert.False(t, ValidSessionID(""))
	assert.False(t, ValidSessionID("a/b"))
	assert.False(t, ValidSessionID(strings.Repeat("x", 65)))
}
