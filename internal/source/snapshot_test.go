package source

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiberlab/otdr-persist/internal/models"
)

func loadFixture(t *testing.T) *Snapshot {
	t.Helper()
	data, err := os.ReadFile("testdata/analysis.yaml")
	require.NoError(t, err)
	snap, err := Decode(data)
	require.NoError(t, err)
	return snap
}

func TestDecodeFixture(t *testing.T) {
	snap := loadFixture(t)

	require.True(t, snap.ResultsValid())
	require.Equal(t, 2.0, snap.FiberLengthEstimate())
	require.ElementsMatch(t, []int{1310, 1550}, snap.AvailableWavelengths())
	require.True(t, snap.SpectralResultsValid())
	require.Len(t, snap.PredictedAttenuations(), 3)

	tw, ok := snap.TestWavelength(1550)
	require.True(t, ok)
	require.Equal(t, 1.4682, tw.GroupIndex())
	require.True(t, tw.EventResultsValid(models.DirectionTop))
	require.True(t, tw.SlidingWindowResultsValid(models.DirectionTop))
	require.False(t, tw.LSAResultsValid(models.DirectionTop))
	require.True(t, tw.LSAResultsValid(models.DirectionAverage))

	sig, ok := tw.Signature(models.DirectionTop)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 3, 14, 9, 21, 7, 0, time.UTC), sig.AcquiredAt())
	require.Equal(t, models.AverageCount, sig.AverageType())
	require.Equal(t, "SPOOL-0042", sig.SampleIDs()[0].Value)
	require.Equal(t, "OM-1138", sig.OpticalModule().SerialNumber)

	_, ok = snap.TestWavelength(1625)
	require.False(t, ok)
}

func TestEventTableIndexes(t *testing.T) {
	snap := loadFixture(t)
	tw, _ := snap.TestWavelength(1550)

	top, ok := tw.BiDirAnalyzer().EventAnalyzer(models.DirectionTop)
	require.True(t, ok)
	require.Equal(t, 1, top.MaxLossIndex())
	require.Equal(t, 2, top.MinLossIndex())
	require.Equal(t, -1, top.MaxReflectanceIndex(), "omitted index means no event")
	require.Equal(t, 2, top.NumBuffers())
	require.Equal(t, 1.0e-6, top.BufferEvent(FiberEndTop).Location)
	require.Equal(t, 2.0690e-5, top.BufferEvent(FiberEndBottom).Location)

	_, ok = top.Event(3)
	require.False(t, ok)

	bottom, ok := tw.BiDirAnalyzer().EventAnalyzer(models.DirectionBottom)
	require.True(t, ok)
	require.Equal(t, bottom.BufferEvent(FiberEndTop), bottom.BufferEvent(FiberEndBottom), "single buffer is both ends")
}

func TestBiDirMFD(t *testing.T) {
	snap := loadFixture(t)
	tw, _ := snap.TestWavelength(1310)
	bidir := tw.BiDirAnalyzer()
	require.True(t, bidir.MFDResultsValid())
	require.Equal(t, 9.21, bidir.FiberMFD(FiberEndTop))
	require.Equal(t, 9.19, bidir.FiberMFD(FiberEndBottom))
}

func TestMissingDirectionIsInvalid(t *testing.T) {
	snap := loadFixture(t)
	tw, _ := snap.TestWavelength(1310)

	require.False(t, tw.EventResultsValid(models.DirectionBottom))
	_, ok := tw.Signature(models.DirectionBottom)
	require.False(t, ok)
	_, ok = tw.BiDirAnalyzer().EventAnalyzer(models.DirectionAverage)
	require.False(t, ok)
}

func TestDecodeJSON(t *testing.T) {
	data := []byte(`{"resultsValid": true, "wavelengths": [{"wavelength": 1310, "groupIndex": 1.4677, "resultsValid": true, "top": {"eventResultsValid": true, "signature": {"acquiredAt": "2024-03-14T09:18:55Z", "sampleIds": [{"label": "Fiber ID", "value": "A1"}]}}}]}`)
	snap, err := Decode(data)
	require.NoError(t, err)
	tw, ok := snap.TestWavelength(1310)
	require.True(t, ok)
	sig, ok := tw.Signature(models.DirectionTop)
	require.True(t, ok)
	require.Equal(t, "A1", sig.SampleIDs()[0].Value)
}

func TestDecodeRejectsBadTimestamp(t *testing.T) {
	data := []byte(`
resultsValid: true
wavelengths:
  - wavelength: 1310
    groupIndex: 1.4677
    top:
      signature:
        acquiredAt: yesterday
`)
	_, err := Decode(data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wavelength 1310 top signature")
}

func TestDecodeRejectsDuplicateWavelength(t *testing.T) {
	data := []byte(`
resultsValid: true
wavelengths:
  - wavelength: 1550
    groupIndex: 1.4682
  - wavelength: 1310
    groupIndex: 1.4677
  - wavelength: 1550
    groupIndex: 1.4682
`)
	if _, err := Decode(data); err == nil {
		t.Fatalf("expected duplicate wavelength to be rejected")
	}

	snap := &Snapshot{Waves: []WavelengthSnapshot{{Nm: 1310}, {Nm: 1310}}}
	if err := snap.Resolve(); err == nil {
		t.Fatalf("expected Resolve to reject duplicate wavelength")
	}
}
