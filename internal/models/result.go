package models

import "time"

// ResultKind discriminates the closed set of result variants.
type ResultKind string

const (
	KindLength      ResultKind = "length"
	KindAttenuation ResultKind = "attenuation"
	KindModeField   ResultKind = "mode_field"
	KindSignature   ResultKind = "signature"
)

// SpoolEnd is the end of the spool a short sample was taken from.
type SpoolEnd string

const (
	SpoolEndOutside SpoolEnd = "outside"
	SpoolEndInside  SpoolEnd = "inside"
)

// Result is implemented by LengthResult, AttenuationResult, ModeFieldResult and
// SignatureResult only.
type Result interface {
	Kind() ResultKind
	Base() *ResultBase
}

// ResultBase holds the fields common to every result variant.
type ResultBase struct {
	ID           int64
	DateMeasured time.Time
	FilePath     string
	SpoolEnd     *SpoolEnd
	SetHeader    *SessionHeader
	Instrument   *Instrument
}

// Base returns the shared result header.
func (b *ResultBase) Base() *ResultBase { return b }

// AttenuationMethod names how an attenuation coefficient was obtained.
type AttenuationMethod string

const (
	AttenuationCutback       AttenuationMethod = "cutback"
	AttenuationBackscatter   AttenuationMethod = "backscatter"
	AttenuationSpectralModel AttenuationMethod = "spectral_model"
)

// AttenuationResult carries per-wavelength attenuation coefficients in dB/km.
// LengthUsed is nil when the session reported no length.
type AttenuationResult struct {
	ResultBase
	LengthUsed *float64
	Method     AttenuationMethod
	Waves      []AttenuationWave
}

// AttenuationWave is one (wavelength nm, coefficient dB/km) pair.
type AttenuationWave struct {
	Wavelength             float64
	AttenuationCoefficient *float64
}

func (*AttenuationResult) Kind() ResultKind { return KindAttenuation }

// ModeFieldMethod names the MFD measurement technique.
type ModeFieldMethod string

const (
	ModeFieldVariableAperture ModeFieldMethod = "variable_aperture"
	ModeFieldBackscatter      ModeFieldMethod = "backscatter"
	ModeFieldFarFieldScan     ModeFieldMethod = "far_field_scan"
)

// ModeFieldResult carries the per-wavelength mode field diameter of one fiber end.
type ModeFieldResult struct {
	ResultBase
	Method ModeFieldMethod
	Waves  []ModeFieldWave
}

// ModeFieldWave is one (wavelength nm, Petermann II MFD um) pair.
type ModeFieldWave struct {
	Wavelength  float64
	MfdStandard float64
}

func (*ModeFieldResult) Kind() ResultKind { return KindModeField }

// LengthMethod names the length measurement technique.
type LengthMethod string

const (
	LengthBackscatter  LengthMethod = "backscatter"
	LengthPhaseShift   LengthMethod = "phase_shift"
	LengthTimeOfFlight LengthMethod = "time_of_flight"
)

// LengthResult is the single reported fiber length of a session, in km.
type LengthResult struct {
	ResultBase
	LengthMeasured float64
	GroupIndex     float64
	Method         LengthMethod
	WavelengthUsed *float64
}

func (*LengthResult) Kind() ResultKind { return KindLength }
