package extractors

import (
	"errors"
	"fmt"

	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
	"github.com/fiberlab/otdr-persist/internal/units"
)

// ErrExtraction marks an inconsistent or missing sub-result met during the walk.
var ErrExtraction = errors.New("extraction fault")

// Extraction is the transient output of one (wavelength, direction) pair.
type Extraction struct {
	Signature *models.SignatureResult
	// AttenuationSample is the end-to-end attenuation in dB/km, set for the top
	// and average directions only.
	AttenuationSample *float64
}

// SignatureExtractor turns one direction of a test wavelength into a SignatureResult.
type SignatureExtractor struct{}

// NewSignatureExtractor constructs a SignatureExtractor.
func NewSignatureExtractor() *SignatureExtractor {
	return &SignatureExtractor{}
}

// ValidSignature returns the signature of (tw, dir) when it exists and at least
// one of the event, sliding-window or LSA analyses is valid.
func ValidSignature(tw source.TestWavelength, dir models.Direction) (source.Signature, bool) {
	hasResults := tw.EventResultsValid(dir) || tw.SlidingWindowResultsValid(dir) || tw.LSAResultsValid(dir)
	if !hasResults {
		return nil, false
	}
	return tw.Signature(dir)
}

// Extract reads (tw, dir). The returned Extraction is empty when the pair has no
// valid results. header and inst are linked into the signature as it is built.
func (e *SignatureExtractor) Extract(tw source.TestWavelength, dir models.Direction, header *models.SessionHeader, inst *models.Instrument) (Extraction, error) {
	sig, ok := ValidSignature(tw, dir)
	if !ok {
		return Extraction{}, nil
	}

	n := tw.GroupIndex()
	if n <= 0 {
		return Extraction{}, fmt.Errorf("%w: group index %v", ErrExtraction, n)
	}

	res := &models.SignatureResult{
		ResultBase: models.ResultBase{
			DateMeasured: sig.AcquiredAt(),
			SetHeader:    header,
			Instrument:   inst,
		},
		Wavelength:    float64(tw.Wavelength()),
		GroupIndex:    n,
		PulseWidthM:   units.NominalToMeters(sig.PulseWidth()),
		PointSpacingM: units.NominalToMeters(sig.PointSpacing()),
		RangeKM:       units.NominalToKm(sig.Range()),
		Direction:     dir,
	}
	if err := applyAveraging(res, sig, n); err != nil {
		return Extraction{}, err
	}

	eta, hasEvents := tw.BiDirAnalyzer().EventAnalyzer(dir)
	if tw.EventResultsValid(dir) && !hasEvents {
		return Extraction{}, fmt.Errorf("%w: event results valid without an event analyzer", ErrExtraction)
	}

	// Locations are re-zeroed to the first buffer event, the fiber start.
	ref := 0.0
	if hasEvents {
		res.Attenuation = models.Float(units.ToAttenuationRateDbPerKm(eta.Attenuation(), n))
		if tw.EventResultsValid(dir) {
			res.Length = models.Float(units.ToDistanceKm(eta.FiberLength(), n))
		}

		if eta.NumBuffers() > 0 {
			first := eta.BufferEvent(source.FiberEndTop)
			ref = first.Location
			res.InsertionEvent = models.SignatureEvent{
				Location:    models.Float(0),
				Loss:        models.Float(first.Loss),
				Reflectance: models.Float(first.Reflectance),
			}
			last := eta.BufferEvent(source.FiberEndBottom)
			res.EndEvent = locatedEvent(last, ref, n)
		}

		var err error
		if res.MaxLossEvent, err = indexedEvent(eta, eta.MaxLossIndex(), ref, n); err != nil {
			return Extraction{}, fmt.Errorf("max loss: %w", err)
		}
		if res.MinLossEvent, err = indexedEvent(eta, eta.MinLossIndex(), ref, n); err != nil {
			return Extraction{}, fmt.Errorf("min loss: %w", err)
		}
		if res.MaxReflectanceEvent, err = indexedEvent(eta, eta.MaxReflectanceIndex(), ref, n); err != nil {
			return Extraction{}, fmt.Errorf("max reflectance: %w", err)
		}
	}

	if tw.SlidingWindowResultsValid(dir) {
		swa, ok := sig.SlidingWindow()
		if !ok {
			return Extraction{}, fmt.Errorf("%w: sliding window results valid without an analyzer", ErrExtraction)
		}
		atten := swa.Attenuation()
		res.MaxWindowAtten = models.WindowAttenuation{
			Location:    models.Float(units.ToFutureLocation(atten.MaxLoc, ref, n)),
			Attenuation: models.Float(units.ToAttenuationRateDbPerKm(atten.Max, n)),
		}
		res.MinWindowAtten = models.WindowAttenuation{
			Location:    models.Float(units.ToFutureLocation(atten.MinLoc, ref, n)),
			Attenuation: models.Float(units.ToAttenuationRateDbPerKm(atten.Min, n)),
		}
		unif := swa.Uniformity()
		res.MaxWindowUnif = models.WindowUniformity{
			Location:   models.Float(units.ToFutureLocation(unif.MaxLoc, ref, n)),
			Uniformity: models.Float(units.ToAttenuationRateDbPerKm(unif.Max, n)),
		}
		res.MinWindowUnif = models.WindowUniformity{
			Location:   models.Float(units.ToFutureLocation(unif.MinLoc, ref, n)),
			Uniformity: models.Float(units.ToAttenuationRateDbPerKm(unif.Min, n)),
		}
	}

	if tw.LSAResultsValid(dir) {
		lsa, ok := sig.LSA()
		if !ok {
			return Extraction{}, fmt.Errorf("%w: LSA results valid without a deviation analysis", ErrExtraction)
		}
		res.MaxLsaDeviation = models.LsaDeviation{
			Location:  models.Float(units.ToFutureLocation(lsa.ExtremumLocation(), ref, n)),
			Deviation: models.Float(lsa.Extremum()),
		}
	}

	out := Extraction{Signature: res}
	if (dir == models.DirectionTop || dir == models.DirectionAverage) && res.Attenuation != nil {
		out.AttenuationSample = models.Float(*res.Attenuation)
	}
	return out, nil
}

func applyAveraging(res *models.SignatureResult, sig source.Signature, n float64) error {
	switch sig.AverageType() {
	case models.AverageCount, "":
		res.AverageType = models.AverageCount
		res.AverageCount = models.Float(sig.AverageCount())
	case models.AverageTime:
		res.AverageType = models.AverageTime
		res.AverageTime = models.Float(sig.AverageTime())
	case models.AverageNoise:
		res.AverageType = models.AverageNoise
		res.AverageLocation = models.Float(units.ToDistanceKm(sig.AverageNoiseLocation(), n))
		res.AverageTarget = models.Float(sig.AverageNoiseTarget())
	default:
		return fmt.Errorf("%w: unknown averaging type %q", ErrExtraction, sig.AverageType())
	}
	return nil
}

func locatedEvent(ev source.Event, ref, n float64) models.SignatureEvent {
	return models.SignatureEvent{
		Location:    models.Float(units.ToFutureLocation(ev.Location, ref, n)),
		Loss:        models.Float(ev.Loss),
		Reflectance: models.Float(ev.Reflectance),
	}
}

// indexedEvent resolves an extremum index; -1 leaves the event empty.
func indexedEvent(eta source.EventAnalyzer, index int, ref, n float64) (models.SignatureEvent, error) {
	if index <= -1 {
		return models.SignatureEvent{}, nil
	}
	ev, ok := eta.Event(index)
	if !ok {
		return models.SignatureEvent{}, fmt.Errorf("%w: event index %d out of range", ErrExtraction, index)
	}
	return locatedEvent(ev, ref, n), nil
}
