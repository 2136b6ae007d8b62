package extractors

import (
	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
)

// ModeFieldSample is the MFD of both fiber ends at one wavelength.
type ModeFieldSample struct {
	Outside models.ModeFieldWave
	Inside  models.ModeFieldWave
}

// ExtractModeField returns the bidirectional MFD of tw, or false when the
// analyzer has no valid MFD results. The top end is the outside of the spool.
func ExtractModeField(tw source.TestWavelength) (ModeFieldSample, bool) {
	bidir := tw.BiDirAnalyzer()
	if !bidir.MFDResultsValid() {
		return ModeFieldSample{}, false
	}
	wavelength := float64(tw.Wavelength())
	return ModeFieldSample{
		Outside: models.ModeFieldWave{Wavelength: wavelength, MfdStandard: bidir.FiberMFD(source.FiberEndTop)},
		Inside:  models.ModeFieldWave{Wavelength: wavelength, MfdStandard: bidir.FiberMFD(source.FiberEndBottom)},
	}, true
}
