package engine

import (
	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
	"github.com/fiberlab/otdr-persist/internal/units"
)

// Selector picks the canonical aggregates of an assembled session: the
// representative wavelength, the single length result and the spectral model
// result.
type Selector struct{}

// NewSelector constructs a Selector.
func NewSelector() *Selector {
	return &Selector{}
}

// Select completes graph in place.
func (s *Selector) Select(analysis source.Analysis, graph *models.Graph) {
	if wl, ok := RepresentativeWavelength(graph.Attenuation); ok {
		if tw, ok := analysis.TestWavelength(wl); ok {
			graph.Length = s.lengthResult(tw, graph)
		}
	}
	if graph.Length != nil {
		graph.ReportedLength = models.Float(graph.Length.LengthMeasured)
	}

	if graph.Attenuation != nil {
		graph.Attenuation.LengthUsed = copyFloat(graph.ReportedLength)
	}

	if analysis.SpectralResultsValid() {
		graph.Spectral = s.spectralResult(analysis, graph)
	}
}

// RepresentativeWavelength returns the wavelength with the lowest attenuation
// coefficient. The first one seen wins ties.
func RepresentativeWavelength(atten *models.AttenuationResult) (int, bool) {
	if atten == nil {
		return 0, false
	}
	found := false
	var best models.AttenuationWave
	for _, w := range atten.Waves {
		if w.AttenuationCoefficient == nil {
			continue
		}
		if !found || *w.AttenuationCoefficient < *best.AttenuationCoefficient {
			best = w
			found = true
		}
	}
	return int(best.Wavelength), found
}

// lengthResult compares the top and bottom fiber lengths at tw. The shorter
// one is reported; top wins ties.
func (s *Selector) lengthResult(tw source.TestWavelength, graph *models.Graph) *models.LengthResult {
	var (
		chosen    models.Direction
		minLength float64
		found     bool
	)
	for _, dir := range []models.Direction{models.DirectionTop, models.DirectionBottom} {
		if !tw.EventResultsValid(dir) {
			continue
		}
		eta, ok := tw.BiDirAnalyzer().EventAnalyzer(dir)
		if !ok {
			continue
		}
		if !found || eta.FiberLength() < minLength {
			chosen = dir
			minLength = eta.FiberLength()
			found = true
		}
	}
	if !found {
		return nil
	}

	date := graph.Header.DateCreated
	if sig, ok := tw.Signature(chosen); ok {
		date = sig.AcquiredAt()
	}
	return &models.LengthResult{
		ResultBase: models.ResultBase{
			DateMeasured: date,
			SetHeader:    graph.Header,
			Instrument:   graph.Instrument,
		},
		LengthMeasured: units.ToDistanceKm(minLength, tw.GroupIndex()),
		GroupIndex:     tw.GroupIndex(),
		Method:         models.LengthBackscatter,
		WavelengthUsed: models.Float(float64(tw.Wavelength())),
	}
}

func (s *Selector) spectralResult(analysis source.Analysis, graph *models.Graph) *models.AttenuationResult {
	date := graph.Header.DateCreated
	if graph.Attenuation != nil {
		date = graph.Attenuation.DateMeasured
	}
	predicted := analysis.PredictedAttenuations()
	waves := make([]models.AttenuationWave, 0, len(predicted))
	for _, p := range predicted {
		waves = append(waves, models.AttenuationWave{
			Wavelength:             p.X,
			AttenuationCoefficient: models.Float(p.Y),
		})
	}
	return &models.AttenuationResult{
		ResultBase: models.ResultBase{
			DateMeasured: date,
			SetHeader:    graph.Header,
			Instrument:   graph.Instrument,
		},
		LengthUsed: copyFloat(graph.ReportedLength),
		Method:     models.AttenuationSpectralModel,
		Waves:      waves,
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(*v)
}
