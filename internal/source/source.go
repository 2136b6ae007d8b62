// Package source defines the read-only capabilities the persister needs from the
// OTDR front panel analysis. Nothing here depends on how the analysis is hosted.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/fiberlab/otdr-persist/internal/models"
)

// ErrUnavailable is returned by loaders when no analysis can be obtained.
var ErrUnavailable = errors.New("analysis unavailable")

// Loader produces the current analysis.
type Loader interface {
	Load(ctx context.Context) (Analysis, error)
}

// FiberEnd selects a buffer event or an MFD value by fiber end.
type FiberEnd int

const (
	FiberEndTop FiberEnd = iota
	FiberEndBottom
)

// Analysis is the whole-session view.
type Analysis interface {
	ResultsValid() bool
	// AvailableWavelengths returns the analysed wavelengths in nm, in any order.
	AvailableWavelengths() []int
	TestWavelength(wavelength int) (TestWavelength, bool)
	// FiberLengthEstimate is the operator-entered length estimate in km; 0 when unknown.
	FiberLengthEstimate() float64
	SpectralResultsValid() bool
	// PredictedAttenuations is the spectral model curve as (nm, dB/km) points.
	PredictedAttenuations() []XY
}

// TestWavelength holds the per-direction results of one wavelength.
type TestWavelength interface {
	Wavelength() int
	GroupIndex() float64
	ResultsValid() bool
	EventResultsValid(dir models.Direction) bool
	SlidingWindowResultsValid(dir models.Direction) bool
	LSAResultsValid(dir models.Direction) bool
	Signature(dir models.Direction) (Signature, bool)
	BiDirAnalyzer() BiDirAnalyzer
}

// BiDirAnalyzer combines the directional event analyses of one wavelength.
type BiDirAnalyzer interface {
	EventAnalyzer(dir models.Direction) (EventAnalyzer, bool)
	MFDResultsValid() bool
	FiberMFD(end FiberEnd) float64
}

// EventAnalyzer exposes the event table of one direction. Locations are
// round-trip times in seconds, attenuation is in dB/s.
type EventAnalyzer interface {
	Attenuation() float64
	FiberLength() float64
	NumBuffers() int
	BufferEvent(end FiberEnd) Event
	// MaxLossIndex, MinLossIndex and MaxReflectanceIndex are -1 when no such event exists.
	MaxLossIndex() int
	MinLossIndex() int
	MaxReflectanceIndex() int
	Event(index int) (Event, bool)
}

// Event is one entry of an event table.
type Event struct {
	Location    float64 `yaml:"location" json:"location"`
	Loss        float64 `yaml:"loss" json:"loss"`
	Reflectance float64 `yaml:"reflectance" json:"reflectance"`
}

// Signature is one acquired backscatter trace.
type Signature interface {
	AcquiredAt() time.Time
	// PulseWidth, PointSpacing and Range are in nominal seconds.
	PulseWidth() float64
	PointSpacing() float64
	Range() float64
	AverageType() models.AverageType
	AverageCount() float64
	AverageTime() float64
	AverageNoiseLocation() float64
	AverageNoiseTarget() float64
	// SampleIDs are the operator-entered identifiers; index 0 is the fiber ID.
	SampleIDs() []SampleID
	OpticalModule() OpticalModule
	SlidingWindow() (SlidingWindowAnalyzer, bool)
	LSA() (LSADeviation, bool)
}

// SampleID is a (label, value) pair entered before acquisition.
type SampleID struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// OpticalModule identifies the acquiring hardware.
type OpticalModule struct {
	SerialNumber string `yaml:"serialNumber" json:"serialNumber"`
	Model        string `yaml:"model" json:"model"`
}

// SlidingWindowAnalyzer reports sliding-window extrema already located by the analysis.
type SlidingWindowAnalyzer interface {
	Attenuation() Extrema
	Uniformity() Extrema
}

// Extrema is a (max, min) pair with round-trip time locations. Values are dB/s.
type Extrema struct {
	Max    float64 `yaml:"max" json:"max"`
	MaxLoc float64 `yaml:"maxLoc" json:"maxLoc"`
	Min    float64 `yaml:"min" json:"min"`
	MinLoc float64 `yaml:"minLoc" json:"minLoc"`
}

// LSADeviation reports the least-squares deviation extremum.
type LSADeviation interface {
	Extremum() float64
	ExtremumLocation() float64
}

// XY is one point of a curve.
type XY struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}
