package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fiberlab/otdr-persist/internal/extractors"
	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
)

// Assembler walks every wavelength and direction of an analysis and builds the
// complete record graph of one session.
type Assembler struct {
	logger    *slog.Logger
	resolver  *IdentityResolver
	extractor *extractors.SignatureExtractor
	selector  *Selector
}

// NewAssembler constructs an Assembler. Instruments are looked up through finder.
func NewAssembler(logger *slog.Logger, finder InstrumentFinder) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		logger:    logger,
		resolver:  NewIdentityResolver(finder),
		extractor: extractors.NewSignatureExtractor(),
		selector:  NewSelector(),
	}
}

// Assemble returns the graph for analysis. ErrNoSessionIdentity is returned
// unchanged when the session has no primary identifier.
func (a *Assembler) Assemble(ctx context.Context, analysis source.Analysis) (*models.Graph, error) {
	if analysis == nil || !analysis.ResultsValid() {
		return nil, errors.New("analysis results are not valid")
	}

	identity, err := a.resolver.Resolve(ctx, analysis)
	if err != nil {
		return nil, err
	}

	b := newSessionBuilder(identity)
	for _, wl := range sortedWavelengths(analysis) {
		tw, ok := analysis.TestWavelength(wl)
		if !ok || !tw.ResultsValid() {
			a.logger.Debug("skipping wavelength without valid results", slog.Int("wavelength", wl))
			continue
		}
		if err := a.walkWavelength(b, tw); err != nil {
			return nil, err
		}
	}

	graph := b.build()
	a.selector.Select(analysis, graph)

	a.logger.Debug("session assembled",
		slog.String("fiber_id", graph.Header.FiberIDString),
		slog.Int("signatures", len(graph.Signatures)),
		slog.Bool("length_reported", graph.Length != nil),
	)
	return graph, nil
}

func (a *Assembler) walkWavelength(b *sessionBuilder, tw source.TestWavelength) error {
	var (
		sample    *float64
		firstDate time.Time
		produced  bool
	)
	for _, dir := range models.Directions {
		out, err := a.extractor.Extract(tw, dir, b.header, b.instrument)
		if err != nil {
			return fmt.Errorf("wavelength %d %s: %w", tw.Wavelength(), dir, err)
		}
		if out.Signature == nil {
			continue
		}
		b.signatures = append(b.signatures, out.Signature)
		if !produced {
			produced = true
			firstDate = out.Signature.DateMeasured
		}
		// The average direction, walked last, replaces the top value.
		if out.AttenuationSample != nil {
			sample = out.AttenuationSample
			b.noteAttenuationDate(out.Signature.DateMeasured)
		}
	}

	if sample != nil {
		b.attenuation = append(b.attenuation, models.AttenuationWave{
			Wavelength:             float64(tw.Wavelength()),
			AttenuationCoefficient: sample,
		})
	}
	if produced {
		if mfd, ok := extractors.ExtractModeField(tw); ok {
			b.addModeField(mfd, firstDate)
		}
	}
	return nil
}

// sessionBuilder accumulates the per-type collections of one invocation.
type sessionBuilder struct {
	header          *models.SessionHeader
	instrument      *models.Instrument
	instrumentIsNew bool

	signatures []*models.SignatureResult

	attenuation     []models.AttenuationWave
	attenuationDate time.Time
	hasAttenuation  bool

	mfdOutside []models.ModeFieldWave
	mfdInside  []models.ModeFieldWave
	mfdDate    time.Time
}

func newSessionBuilder(identity Identity) *sessionBuilder {
	return &sessionBuilder{
		header:          identity.Header,
		instrument:      identity.Instrument,
		instrumentIsNew: identity.InstrumentIsNew,
	}
}

func (b *sessionBuilder) noteAttenuationDate(t time.Time) {
	if b.hasAttenuation {
		return
	}
	b.hasAttenuation = true
	b.attenuationDate = t
}

func (b *sessionBuilder) addModeField(sample extractors.ModeFieldSample, date time.Time) {
	if len(b.mfdOutside) == 0 {
		b.mfdDate = date
	}
	b.mfdOutside = append(b.mfdOutside, sample.Outside)
	b.mfdInside = append(b.mfdInside, sample.Inside)
}

func (b *sessionBuilder) base(date time.Time) models.ResultBase {
	return models.ResultBase{
		DateMeasured: date,
		SetHeader:    b.header,
		Instrument:   b.instrument,
	}
}

func (b *sessionBuilder) build() *models.Graph {
	graph := &models.Graph{
		Header:          b.header,
		Instrument:      b.instrument,
		InstrumentIsNew: b.instrumentIsNew,
		Signatures:      b.signatures,
	}
	if len(b.attenuation) > 0 {
		graph.Attenuation = &models.AttenuationResult{
			ResultBase: b.base(b.attenuationDate),
			Method:     models.AttenuationBackscatter,
			Waves:      b.attenuation,
		}
	}
	if len(b.mfdOutside) > 0 {
		outside, inside := models.SpoolEndOutside, models.SpoolEndInside
		top := &models.ModeFieldResult{ResultBase: b.base(b.mfdDate), Method: models.ModeFieldBackscatter, Waves: b.mfdOutside}
		top.SpoolEnd = &outside
		bottom := &models.ModeFieldResult{ResultBase: b.base(b.mfdDate), Method: models.ModeFieldBackscatter, Waves: b.mfdInside}
		bottom.SpoolEnd = &inside
		graph.ModeFields = []*models.ModeFieldResult{top, bottom}
	}
	return graph
}
