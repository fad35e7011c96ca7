package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanArtifactStorage(t *testing.T) {
	run := createQueuedRun(t, 401, time.Now().UTC())

	artifact, err := Connection().CreateScanArtifact(&ScanArtifact{
		ScanRunID: run.ID,
		Name:      ArtifactOSV,
		Content:   `{"version":"2.1.0","runs":[]}`,
	})
	require.NoError(t, err)
	assert.Equal(t, SARIFContentType, artifact.ContentType)

	fetched, err := Connection().GetScanArtifact(run.ID, ArtifactOSV)
	require.NoError(t, err)
	assert.Equal(t, `{"version":"2.1.0","runs":[]}`, fetched.Content)

	_, err = Connection().GetScanArtifact(run.ID, "missing.sarif")
	assert.Error(t, err)
}

func TestListScanArtifactsOmitsContent(t *testing.T) {
	run := createQueuedRun(t, 402, time.Now().UTC())

	for _, name := range []string{ArtifactSemgrep, ArtifactMerged} {
		_, err := Connection().CreateScanArtifact(&ScanArtifact{
			ScanRunID: run.ID,
			Name:      name,
			Content:   "{}",
		})
		require.NoError(t, err)
	}

	items, err := Connection().ListScanArtifacts(run.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ArtifactMerged, items[0].Name)
	assert.Equal(t, ArtifactSemgrep, items[1].Name)
	for _, item := range items {
		assert.Empty(t, item.Content)
	}
}
