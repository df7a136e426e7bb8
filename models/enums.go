package models

import "fmt"

// InvalidEnumError beschreibt einen Enum-Wert aus einer Modellantwort,
// der nicht zum erlaubten Wertebereich gehört.
type InvalidEnumError struct {
	Field string
	Value string
}

func (e *InvalidEnumError) Error() string {
	return fmt.Sprintf("invalid %s value %q", e.Field, e.Value)
}

// ThreatLevel ist die kategoriale Schwere eines Threats.
type ThreatLevel string

const (
	ThreatLevelLow      ThreatLevel = "low"
	ThreatLevelMedium   ThreatLevel = "medium"
	ThreatLevelHigh     ThreatLevel = "high"
	ThreatLevelCritical ThreatLevel = "critical"
)

// ParseThreatLevel prüft einen freien String gegen den geschlossenen Wertebereich.
// Unbekannte Werte werden abgelehnt, nicht stillschweigend umgedeutet.
func ParseThreatLevel(s string) (ThreatLevel, error) {
	switch ThreatLevel(s) {
	case ThreatLevelLow, ThreatLevelMedium, ThreatLevelHigh, ThreatLevelCritical:
		return ThreatLevel(s), nil
	}
	return "", &InvalidEnumError{Field: "threat_level", Value: s}
}

// TrendDirection beschreibt die Entwicklungsrichtung der Machbarkeit eines Threats.
type TrendDirection string

const (
	TrendStable            TrendDirection = "stable"
	TrendIncreasing        TrendDirection = "increasing"
	TrendRapidlyIncreasing TrendDirection = "rapidly_increasing"
	TrendDecreasing        TrendDirection = "decreasing"
)

// ParseTrendDirection prüft einen freien String gegen den geschlossenen Wertebereich.
func ParseTrendDirection(s string) (TrendDirection, error) {
	switch TrendDirection(s) {
	case TrendStable, TrendIncreasing, TrendRapidlyIncreasing, TrendDecreasing:
		return TrendDirection(s), nil
	}
	return "", &InvalidEnumError{Field: "trend", Value: s}
}

// ImpactLevel stuft den Beitrag eines einzelnen Items zu einem Threat ein.
type ImpactLevel string

const (
	ImpactNone        ImpactLevel = "none"
	ImpactIncremental ImpactLevel = "incremental"
	ImpactSignificant ImpactLevel = "significant"
	ImpactStepChange  ImpactLevel = "step_change"
)

// ParseImpactLevel prüft einen freien String gegen den geschlossenen Wertebereich.
func ParseImpactLevel(s string) (ImpactLevel, error) {
	switch ImpactLevel(s) {
	case ImpactNone, ImpactIncremental, ImpactSignificant, ImpactStepChange:
		return ImpactLevel(s), nil
	}
	return "", &InvalidEnumError{Field: "impact_level", Value: s}
}
