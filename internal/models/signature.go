package models

// Direction is the acquisition direction of a signature. The numeric values
// match the measurement source's direction index.
type Direction int

const (
	DirectionTop Direction = iota
	DirectionBottom
	DirectionAverage
)

// Directions lists every direction in walk order.
var Directions = []Direction{DirectionTop, DirectionBottom, DirectionAverage}

func (d Direction) String() string {
	switch d {
	case DirectionTop:
		return "top"
	case DirectionBottom:
		return "bottom"
	case DirectionAverage:
		return "average"
	default:
		return "unknown"
	}
}

// AverageType is the OTDR averaging method used during acquisition.
type AverageType string

const (
	AverageCount AverageType = "count"
	AverageTime  AverageType = "time"
	AverageNoise AverageType = "noise"
)

// SignatureResult stores what can only be obtained from OTDR signature analysis.
// Length and end-to-end attenuation are also reported separately as LengthResult
// and AttenuationResult under the same header.
type SignatureResult struct {
	ResultBase
	Wavelength    float64
	GroupIndex    float64
	PulseWidthM   float64
	PointSpacingM float64
	RangeKM       float64
	Direction     Direction

	AverageType     AverageType
	AverageCount    *float64
	AverageTime     *float64
	AverageLocation *float64
	AverageTarget   *float64

	Length      *float64
	Attenuation *float64

	InsertionEvent      SignatureEvent
	EndEvent            SignatureEvent
	MaxLossEvent        SignatureEvent
	MinLossEvent        SignatureEvent
	MaxReflectanceEvent SignatureEvent
	MaxWindowAtten      WindowAttenuation
	MinWindowAtten      WindowAttenuation
	MaxWindowUnif       WindowUniformity
	MinWindowUnif       WindowUniformity
	MaxLsaDeviation     LsaDeviation
}

func (*SignatureResult) Kind() ResultKind { return KindSignature }

// SignatureEvent is a located event; every field is absent when the event was not found.
type SignatureEvent struct {
	Location    *float64
	Loss        *float64
	Reflectance *float64
}

// WindowAttenuation is a sliding-window attenuation extremum in dB/km.
type WindowAttenuation struct {
	Location    *float64
	Attenuation *float64
}

// WindowUniformity is a sliding-window uniformity extremum in dB/km.
type WindowUniformity struct {
	Location   *float64
	Uniformity *float64
}

// LsaDeviation is the least-squares deviation extremum.
type LsaDeviation struct {
	Location  *float64
	Deviation *float64
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
