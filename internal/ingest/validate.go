package ingest

import (
	"github.com/lox/wxarchive/internal/models"
)

const (
	FlagTempOutOfRange = "temp_out_of_range"
	FlagTempInverted   = "temp_min_above_max"
	FlagRainNegative   = "rain_negative"
	FlagRainUnlikely   = "rain_unlikely"
	FlagWindNegative   = "wind_negative"
	FlagWindUnlikely   = "wind_unlikely"
	FlagGustBelowWind  = "gust_below_wind"
)

// CheckDaily returns plausibility flags for a daily row. Flags are advisory:
// rows are never dropped because of them.
func CheckDaily(d models.DailyAggregate) []string {
	var flags []string

	for _, v := range []struct {
		ok  bool
		val float64
	}{{d.TempMax.Valid, d.TempMax.Float64}, {d.TempMin.Valid, d.TempMin.Float64}} {
		if v.ok && (v.val < -60 || v.val > 60) {
			flags = append(flags, FlagTempOutOfRange)
			break
		}
	}

	if d.TempMax.Valid && d.TempMin.Valid && d.TempMin.Float64 > d.TempMax.Float64 {
		flags = append(flags, FlagTempInverted)
	}

	if d.RainSum.Valid {
		if d.RainSum.Float64 < 0 {
			flags = append(flags, FlagRainNegative)
		} else if d.RainSum.Float64 > 500 {
			flags = append(flags, FlagRainUnlikely)
		}
	}

	if d.WindMax.Valid {
		if d.WindMax.Float64 < 0 {
			flags = append(flags, FlagWindNegative)
		} else if d.WindMax.Float64 > 250 {
			flags = append(flags, FlagWindUnlikely)
		}
	}

	if d.GustMax.Valid && d.WindMax.Valid && d.GustMax.Float64 < d.WindMax.Float64 {
		flags = append(flags, FlagGustBelowWind)
	}

	return flags
}
