package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanStageLifecycle(t *testing.T) {
	run := createQueuedRun(t, 201, time.Now().UTC())

	stage, err := Connection().CreateScanStage(&ScanStage{
		ScanRunID: run.ID,
		Stage:     StageFetchRepo,
		StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotZero(t, stage.ID)
	assert.Nil(t, stage.EndedAt)

	err = Connection().CloseScanStage(stage.ID, "")
	require.NoError(t, err)

	fetched, err := Connection().GetScanStage(run.ID, StageFetchRepo)
	require.NoError(t, err)
	assert.NotNil(t, fetched.EndedAt)
	assert.Nil(t, fetched.ErrorMessage)
}

func TestScanStageErrorRecorded(t *testing.T) {
	run := createQueuedRun(t, 202, time.Now().UTC())

	stage, err := Connection().CreateScanStage(&ScanStage{
		ScanRunID: run.ID,
		Stage:     StageSemanticCodeQL,
		StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	err = Connection().CloseScanStage(stage.ID, "command not found")
	require.NoError(t, err)

	fetched, err := Connection().GetScanStage(run.ID, StageSemanticCodeQL)
	require.NoError(t, err)
	assert.NotNil(t, fetched.EndedAt)
	require.NotNil(t, fetched.ErrorMessage)
	assert.Equal(t, "command not found", *fetched.ErrorMessage)
}

func TestListScanStagesOrdered(t *testing.T) {
	run := createQueuedRun(t, 203, time.Now().UTC())

	base := time.Now().UTC()
	names := []string{StageFetchRepo, StageScaOSV, StageSastSemgrep, StageNormalize}
	for i, name := range names {
		_, err := Connection().CreateScanStage(&ScanStage{
			ScanRunID: run.ID,
			Stage:     name,
			StartedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	stages, err := Connection().ListScanStages(run.ID)
	require.NoError(t, err)
	require.Len(t, stages, len(names))
	for i, name := range names {
		assert.Equal(t, name, stages[i].Stage)
	}
}
