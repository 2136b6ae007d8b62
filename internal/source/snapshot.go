package source

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/utils"
)

// Snapshot is a plain-data export of one front panel analysis. It implements
// Analysis and every nested capability. JSON exports decode as well, JSON being
// a subset of YAML.
type Snapshot struct {
	Valid            bool                 `yaml:"resultsValid" json:"resultsValid"`
	LengthEstimateKm float64              `yaml:"fiberLengthEstimate" json:"fiberLengthEstimate"`
	Spectral         *SpectralSnapshot    `yaml:"spectralModel,omitempty" json:"spectralModel,omitempty"`
	Waves            []WavelengthSnapshot `yaml:"wavelengths" json:"wavelengths"`
}

// SpectralSnapshot is the spectral model section.
type SpectralSnapshot struct {
	Valid     bool `yaml:"valid" json:"valid"`
	Predicted []XY `yaml:"predictedAttenuations" json:"predictedAttenuations"`
}

// WavelengthSnapshot holds one wavelength and its three directions.
type WavelengthSnapshot struct {
	Nm      int                `yaml:"wavelength" json:"wavelength"`
	Index   float64            `yaml:"groupIndex" json:"groupIndex"`
	Valid   bool               `yaml:"resultsValid" json:"resultsValid"`
	Top     *DirectionSnapshot `yaml:"top,omitempty" json:"top,omitempty"`
	Bottom  *DirectionSnapshot `yaml:"bottom,omitempty" json:"bottom,omitempty"`
	Average *DirectionSnapshot `yaml:"average,omitempty" json:"average,omitempty"`
	MFD     *MFDSnapshot       `yaml:"mfd,omitempty" json:"mfd,omitempty"`
}

// DirectionSnapshot holds the validity flags and analyses of one direction.
type DirectionSnapshot struct {
	EventsValid        bool                `yaml:"eventResultsValid" json:"eventResultsValid"`
	SlidingWindowValid bool                `yaml:"slidingWindowResultsValid" json:"slidingWindowResultsValid"`
	LSAValid           bool                `yaml:"lsaResultsValid" json:"lsaResultsValid"`
	Events             *EventTableSnapshot `yaml:"events,omitempty" json:"events,omitempty"`
	Sig                *SignatureSnapshot  `yaml:"signature,omitempty" json:"signature,omitempty"`
}

// MFDSnapshot is the bidirectional mode field diameter result.
type MFDSnapshot struct {
	Valid  bool    `yaml:"valid" json:"valid"`
	Top    float64 `yaml:"top" json:"top"`
	Bottom float64 `yaml:"bottom" json:"bottom"`
}

// EventTableSnapshot is the event analyzer output of one direction. Omitted
// extremum indexes mean "no such event".
type EventTableSnapshot struct {
	Atten     float64 `yaml:"attenuation" json:"attenuation"`
	Length    float64 `yaml:"fiberLength" json:"fiberLength"`
	Buffers   []Event `yaml:"buffers" json:"buffers"`
	Table     []Event `yaml:"table" json:"table"`
	MaxLoss   *int    `yaml:"maxLossIndex,omitempty" json:"maxLossIndex,omitempty"`
	MinLoss   *int    `yaml:"minLossIndex,omitempty" json:"minLossIndex,omitempty"`
	MaxReflex *int    `yaml:"maxReflectanceIndex,omitempty" json:"maxReflectanceIndex,omitempty"`
}

// SignatureSnapshot is one acquired trace.
type SignatureSnapshot struct {
	AcquiredAtRaw string                 `yaml:"acquiredAt" json:"acquiredAt"`
	Pulse         float64                `yaml:"pulseWidth" json:"pulseWidth"`
	Spacing       float64                `yaml:"pointSpacing" json:"pointSpacing"`
	RangeS        float64                `yaml:"range" json:"range"`
	AvgType       models.AverageType     `yaml:"averageType" json:"averageType"`
	AvgCount      float64                `yaml:"averageCount" json:"averageCount"`
	AvgTime       float64                `yaml:"averageTime" json:"averageTime"`
	NoiseLoc      float64                `yaml:"averageNoiseLocation" json:"averageNoiseLocation"`
	NoiseTarget   float64                `yaml:"averageNoiseTarget" json:"averageNoiseTarget"`
	IDs           []SampleID             `yaml:"sampleIds" json:"sampleIds"`
	Module        OpticalModule          `yaml:"opticalModule" json:"opticalModule"`
	Window        *SlidingWindowSnapshot `yaml:"slidingWindow,omitempty" json:"slidingWindow,omitempty"`
	Lsa           *LSASnapshot           `yaml:"lsa,omitempty" json:"lsa,omitempty"`

	acquiredAt time.Time
}

// SlidingWindowSnapshot holds the sliding-window extrema.
type SlidingWindowSnapshot struct {
	Atten Extrema `yaml:"attenuation" json:"attenuation"`
	Unif  Extrema `yaml:"uniformity" json:"uniformity"`
}

// LSASnapshot holds the LSA deviation extremum.
type LSASnapshot struct {
	Value float64 `yaml:"extremum" json:"extremum"`
	Loc   float64 `yaml:"extremumLoc" json:"extremumLoc"`
}

// Decode parses a YAML or JSON snapshot and resolves its timestamps.
func Decode(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if err := snap.Resolve(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Resolve parses every signature timestamp and rejects repeated wavelengths.
// Snapshots built in code must call it before use.
func (s *Snapshot) Resolve() error {
	seen := make(map[int]struct{}, len(s.Waves))
	for i := range s.Waves {
		w := &s.Waves[i]
		if _, dup := seen[w.Nm]; dup {
			return fmt.Errorf("wavelength %d listed more than once", w.Nm)
		}
		seen[w.Nm] = struct{}{}
		for _, dir := range models.Directions {
			d := w.direction(dir)
			if d == nil || d.Sig == nil {
				continue
			}
			t, err := utils.ParseRFC3339(d.Sig.AcquiredAtRaw)
			if err != nil {
				return fmt.Errorf("wavelength %d %s signature: %w", w.Nm, dir, err)
			}
			d.Sig.acquiredAt = t
		}
	}
	return nil
}

func (s *Snapshot) ResultsValid() bool           { return s.Valid }
func (s *Snapshot) FiberLengthEstimate() float64 { return s.LengthEstimateKm }

func (s *Snapshot) AvailableWavelengths() []int {
	waves := make([]int, 0, len(s.Waves))
	for _, w := range s.Waves {
		waves = append(waves, w.Nm)
	}
	return waves
}

func (s *Snapshot) TestWavelength(wavelength int) (TestWavelength, bool) {
	for i := range s.Waves {
		if s.Waves[i].Nm == wavelength {
			return &s.Waves[i], true
		}
	}
	return nil, false
}

func (s *Snapshot) SpectralResultsValid() bool {
	return s.Spectral != nil && s.Spectral.Valid
}

func (s *Snapshot) PredictedAttenuations() []XY {
	if s.Spectral == nil {
		return nil
	}
	return s.Spectral.Predicted
}

func (w *WavelengthSnapshot) direction(dir models.Direction) *DirectionSnapshot {
	switch dir {
	case models.DirectionTop:
		return w.Top
	case models.DirectionBottom:
		return w.Bottom
	case models.DirectionAverage:
		return w.Average
	}
	return nil
}

func (w *WavelengthSnapshot) Wavelength() int     { return w.Nm }
func (w *WavelengthSnapshot) GroupIndex() float64 { return w.Index }
func (w *WavelengthSnapshot) ResultsValid() bool  { return w.Valid }

func (w *WavelengthSnapshot) EventResultsValid(dir models.Direction) bool {
	d := w.direction(dir)
	return d != nil && d.EventsValid
}

func (w *WavelengthSnapshot) SlidingWindowResultsValid(dir models.Direction) bool {
	d := w.direction(dir)
	return d != nil && d.SlidingWindowValid
}

func (w *WavelengthSnapshot) LSAResultsValid(dir models.Direction) bool {
	d := w.direction(dir)
	return d != nil && d.LSAValid
}

func (w *WavelengthSnapshot) Signature(dir models.Direction) (Signature, bool) {
	d := w.direction(dir)
	if d == nil || d.Sig == nil {
		return nil, false
	}
	return d.Sig, true
}

func (w *WavelengthSnapshot) BiDirAnalyzer() BiDirAnalyzer { return w }

func (w *WavelengthSnapshot) EventAnalyzer(dir models.Direction) (EventAnalyzer, bool) {
	d := w.direction(dir)
	if d == nil || d.Events == nil {
		return nil, false
	}
	return d.Events, true
}

func (w *WavelengthSnapshot) MFDResultsValid() bool {
	return w.MFD != nil && w.MFD.Valid
}

func (w *WavelengthSnapshot) FiberMFD(end FiberEnd) float64 {
	if w.MFD == nil {
		return 0
	}
	if end == FiberEndBottom {
		return w.MFD.Bottom
	}
	return w.MFD.Top
}

func (e *EventTableSnapshot) Attenuation() float64 { return e.Atten }
func (e *EventTableSnapshot) FiberLength() float64 { return e.Length }
func (e *EventTableSnapshot) NumBuffers() int      { return len(e.Buffers) }

// BufferEvent returns the first buffer for the top end and the last one for the bottom end.
func (e *EventTableSnapshot) BufferEvent(end FiberEnd) Event {
	if len(e.Buffers) == 0 {
		return Event{}
	}
	if end == FiberEndBottom {
		return e.Buffers[len(e.Buffers)-1]
	}
	return e.Buffers[0]
}

func (e *EventTableSnapshot) MaxLossIndex() int        { return indexOrNone(e.MaxLoss) }
func (e *EventTableSnapshot) MinLossIndex() int        { return indexOrNone(e.MinLoss) }
func (e *EventTableSnapshot) MaxReflectanceIndex() int { return indexOrNone(e.MaxReflex) }

func (e *EventTableSnapshot) Event(index int) (Event, bool) {
	if index < 0 || index >= len(e.Table) {
		return Event{}, false
	}
	return e.Table[index], true
}

func indexOrNone(i *int) int {
	if i == nil {
		return -1
	}
	return *i
}

func (s *SignatureSnapshot) AcquiredAt() time.Time           { return s.acquiredAt }
func (s *SignatureSnapshot) PulseWidth() float64             { return s.Pulse }
func (s *SignatureSnapshot) PointSpacing() float64           { return s.Spacing }
func (s *SignatureSnapshot) Range() float64                  { return s.RangeS }
func (s *SignatureSnapshot) AverageType() models.AverageType { return s.AvgType }
func (s *SignatureSnapshot) AverageCount() float64           { return s.AvgCount }
func (s *SignatureSnapshot) AverageTime() float64            { return s.AvgTime }
func (s *SignatureSnapshot) AverageNoiseLocation() float64   { return s.NoiseLoc }
func (s *SignatureSnapshot) AverageNoiseTarget() float64     { return s.NoiseTarget }
func (s *SignatureSnapshot) SampleIDs() []SampleID           { return s.IDs }
func (s *SignatureSnapshot) OpticalModule() OpticalModule    { return s.Module }

func (s *SignatureSnapshot) SlidingWindow() (SlidingWindowAnalyzer, bool) {
	if s.Window == nil {
		return nil, false
	}
	return s.Window, true
}

func (s *SignatureSnapshot) LSA() (LSADeviation, bool) {
	if s.Lsa == nil {
		return nil, false
	}
	return s.Lsa, true
}

func (w *SlidingWindowSnapshot) Attenuation() Extrema { return w.Atten }
func (w *SlidingWindowSnapshot) Uniformity() Extrema  { return w.Unif }

func (l *LSASnapshot) Extremum() float64         { return l.Value }
func (l *LSASnapshot) ExtremumLocation() float64 { return l.Loc }
