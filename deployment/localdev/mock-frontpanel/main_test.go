package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
)

func TestSampleAnalysisDecodes(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	data, err := json.Marshal(sampleAnalysis("SPOOL-TEST", now))
	require.NoError(t, err)

	snap, err := source.Decode(data)
	require.NoError(t, err)
	require.True(t, snap.ResultsValid())
	require.ElementsMatch(t, []int{1310, 1550}, snap.AvailableWavelengths())

	tw, ok := snap.TestWavelength(1550)
	require.True(t, ok)
	sig, ok := tw.Signature(models.DirectionBottom)
	require.True(t, ok)
	require.Equal(t, "SPOOL-TEST", sig.SampleIDs()[0].Value)
	require.True(t, sig.AcquiredAt().Equal(now.Add(6*time.Minute)))
	require.True(t, tw.BiDirAnalyzer().MFDResultsValid())
}
