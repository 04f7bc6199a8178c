package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"recletter/internal/errors"
	"recletter/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlContext = `applicantName: Maria Lopez
targetProgramName: Rhodes Scholarship
submissionDeadline: "2026-01-15"
opportunityContext: |
  A postgraduate award for study at Oxford.
coreQualities:
  - Leadership
  - Curiosity
specificAnecdotes:
  - Ran the campus food bank
customQuestions:
  - id: q1
    text: How long have you known Maria?
    focusQuality: Relationship
    contextContext: ""
`

func TestParseContextYAML(t *testing.T) {
	ctx, err := ParseContext([]byte(yamlContext), ".yaml")
	require.NoError(t, err)

	assert.Equal(t, "Maria Lopez", ctx.ApplicantName)
	assert.Equal(t, "2026-01-15", ctx.SubmissionDeadline)
	assert.Equal(t, "A postgraduate award for study at Oxford.\n", ctx.OpportunityContext)
	assert.Equal(t, []string{"Leadership", "Curiosity", ""}, ctx.CoreQualities)
	assert.Equal(t, []string{"Ran the campus food bank", "", ""}, ctx.SpecificAnecdotes)
	require.Len(t, ctx.CustomQuestions, 1)
	assert.Equal(t, "q1", ctx.CustomQuestions[0].ID)
}

func TestParseContextJSON(t *testing.T) {
	raw := `{"applicantName":"Jo","targetProgramName":"Fellows","coreQualities":["A","B","C","D"]}`
	ctx, err := ParseContext([]byte(raw), ".JSON")
	require.NoError(t, err)
	assert.Equal(t, "Jo", ctx.ApplicantName)
	assert.Equal(t, []string{"A", "B", "C"}, ctx.CoreQualities, "extra qualities are truncated")
	assert.NotNil(t, ctx.CustomQuestions)
}

func TestParseContextRejectsUnknownFields(t *testing.T) {
	_, err := ParseContext([]byte("applicantName: Jo\nfavoriteColor: blue\n"), ".yml")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidFormat))

	_, err = ParseContext([]byte(`{"applicant":"Jo"}`), ".json")
	assert.Error(t, err)
}

func TestLoadContextFileMissing(t *testing.T) {
	_, err := LoadContextFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}

func TestMarshalContextYAMLRoundTrip(t *testing.T) {
	original := types.DefaultProgramContext()
	raw, err := MarshalContextYAML(original)
	require.NoError(t, err)

	parsed, err := ParseContext(raw, ".yaml")
	require.NoError(t, err)
	assert.Equal(t, original.Normalized().OpportunityContext, parsed.OpportunityContext)
	assert.Equal(t, original.CoreQualities, parsed.CoreQualities)
	assert.False(t, original.SeedsChanged(parsed))
}

func TestContextWatcherAppliesChanges(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "context.yaml")
	require.NoError(t, os.WriteFile(file, []byte("applicantName: First\n"), 0o600))

	changes := make(chan types.ProgramContext, 4)
	w := NewContextWatcher(file, 20*time.Millisecond, func(ctx types.ProgramContext) {
		changes <- ctx
	}, testLogger)
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(), "second start must fail")

	require.NoError(t, os.WriteFile(file, []byte("applicantName: Second\n"), 0o600))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(file, future, future))

	select {
	case ctx := <-changes:
		assert.Equal(t, "Second", ctx.ApplicantName)
	case <-time.After(5 * time.Second):
		t.Fatal("context change was not delivered")
	}

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	assert.NoError(t, w.Stop())
}
