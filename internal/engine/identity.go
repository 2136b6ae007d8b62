package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fiberlab/otdr-persist/internal/extractors"
	"github.com/fiberlab/otdr-persist/internal/models"
	"github.com/fiberlab/otdr-persist/internal/source"
)

// ErrNoSessionIdentity is returned when the first valid signature carries no
// primary sample identifier. Nothing may be persisted for such a session.
var ErrNoSessionIdentity = errors.New("session has no primary sample identifier")

// InstrumentFinder looks up a stored instrument by serial number. A nil
// instrument with a nil error means no such instrument exists.
type InstrumentFinder interface {
	FindInstrument(ctx context.Context, serialNumber string) (*models.Instrument, error)
}

// Identity is the shared header and instrument of one session.
type Identity struct {
	Header          *models.SessionHeader
	Instrument      *models.Instrument
	InstrumentIsNew bool
}

// IdentityResolver derives the session identity from the first valid signature.
type IdentityResolver struct {
	finder InstrumentFinder
}

// NewIdentityResolver constructs an IdentityResolver backed by finder.
func NewIdentityResolver(finder InstrumentFinder) *IdentityResolver {
	return &IdentityResolver{finder: finder}
}

// Resolve builds the session header and resolves the instrument with at most one lookup.
func (r *IdentityResolver) Resolve(ctx context.Context, analysis source.Analysis) (Identity, error) {
	sig, ok := firstValidSignature(analysis)
	if !ok {
		return Identity{}, ErrNoSessionIdentity
	}

	ids := sig.SampleIDs()
	if len(ids) == 0 || ids[0].Value == "" {
		return Identity{}, ErrNoSessionIdentity
	}

	header := &models.SessionHeader{
		FiberIDString: ids[0].Value,
		FiberIDTag:    ids[0].Label,
		DateCreated:   sig.AcquiredAt(),
	}
	if strings.TrimSpace(header.FiberIDTag) == "" {
		header.FiberIDTag = models.DefaultFiberIDTag
	}
	if estimate := analysis.FiberLengthEstimate(); estimate > 0 {
		header.EnteredLength = models.Float(estimate * 1000)
	}
	for _, id := range ids[1:] {
		header.Labels = append(header.Labels, models.Label{Tag: id.Label, Value: id.Value})
	}

	identity := Identity{Header: header}
	module := sig.OpticalModule()
	serial := strings.TrimSpace(module.SerialNumber)
	if serial == "" {
		return identity, nil
	}

	if r.finder == nil {
		return Identity{}, errors.New("instrument finder not configured")
	}
	inst, err := r.finder.FindInstrument(ctx, serial)
	if err != nil {
		return Identity{}, fmt.Errorf("find instrument %q: %w", serial, err)
	}
	if inst == nil {
		inst = &models.Instrument{SerialNumber: serial, ModelNumber: module.Model}
		identity.InstrumentIsNew = true
	}
	identity.Instrument = inst
	return identity, nil
}

// sortedWavelengths returns the available wavelengths in ascending order.
func sortedWavelengths(analysis source.Analysis) []int {
	wavelengths := append([]int(nil), analysis.AvailableWavelengths()...)
	sort.Ints(wavelengths)
	return wavelengths
}

func firstValidSignature(analysis source.Analysis) (source.Signature, bool) {
	for _, wl := range sortedWavelengths(analysis) {
		tw, ok := analysis.TestWavelength(wl)
		if !ok || !tw.ResultsValid() {
			continue
		}
		for _, dir := range models.Directions {
			if sig, ok := extractors.ValidSignature(tw, dir); ok {
				return sig, true
			}
		}
	}
	return nil, false
}
