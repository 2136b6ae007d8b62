package models

// Graph is the complete record set produced by one invocation. Every result
// references Header and Instrument by pointer.
type Graph struct {
	Header          *SessionHeader
	Instrument      *Instrument
	InstrumentIsNew bool

	Signatures  []*SignatureResult
	Attenuation *AttenuationResult
	ModeFields  []*ModeFieldResult
	Length      *LengthResult
	Spectral    *AttenuationResult

	// ReportedLength is the canonical length (km) referenced by every attenuation result.
	ReportedLength *float64
}

// Results returns every result in commit order: signatures, backscatter
// attenuation, mode field pair, length, spectral attenuation.
func (g *Graph) Results() []Result {
	results := make([]Result, 0, len(g.Signatures)+5)
	for _, sig := range g.Signatures {
		results = append(results, sig)
	}
	if g.Attenuation != nil {
		results = append(results, g.Attenuation)
	}
	for _, mfd := range g.ModeFields {
		results = append(results, mfd)
	}
	if g.Length != nil {
		results = append(results, g.Length)
	}
	if g.Spectral != nil {
		results = append(results, g.Spectral)
	}
	return results
}

// CountByKind tallies Results() per kind.
func (g *Graph) CountByKind() map[ResultKind]int {
	counts := make(map[ResultKind]int, 4)
	for _, r := range g.Results() {
		counts[r.Kind()]++
	}
	return counts
}
