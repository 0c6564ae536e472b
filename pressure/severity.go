package pressure

import "fmt"

// Severity is the cleanup tier chosen for one sample.
type Severity int

const (
	// SeverityNone means usage is at or below the threshold.
	SeverityNone Severity = iota

	// SeverityLow purges expired cache entries and trims pools.
	SeverityLow

	// SeverityMedium also shrinks caches and clears history buffers.
	SeverityMedium

	// SeverityCritical also clears caches and pools and resets breakers.
	SeverityCritical
)

// Tier boundaries on the usage/threshold ratio.
const (
	lowRatioLimit    = 1.2
	mediumRatioLimit = 1.5
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// SeverityFor maps a usage sample to a tier. A non-positive threshold
// yields SeverityNone.
func SeverityFor(usageMB, thresholdMB float64) Severity {
	if thresholdMB <= 0 {
		return SeverityNone
	}
	ratio := usageMB / thresholdMB
	switch {
	case ratio <= 1:
		return SeverityNone
	case ratio <= lowRatioLimit:
		return SeverityLow
	case ratio <= mediumRatioLimit:
		return SeverityMedium
	default:
		return SeverityCritical
	}
}
