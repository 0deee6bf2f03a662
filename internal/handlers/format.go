package handlers

import "fmt"

// Distance conversion constants
const (
	MetersPerMile      = 1609.344
	MetersPerKilometer = 1000.0
)

// FormatDistance renders meters in kilometers or miles
func FormatDistance(meters float64, useMiles bool) string {
	if useMiles {
		return fmt.Sprintf("%.2f mi", meters/MetersPerMile)
	}
	return fmt.Sprintf("%.2f km", meters/MetersPerKilometer)
}

// FormatDuration renders seconds as minutes and seconds
func FormatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins == 0:
		return fmt.Sprintf("%ds", secs)
	case secs == 0:
		return fmt.Sprintf("%dm", mins)
	default:
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
}
