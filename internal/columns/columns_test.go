package columns

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/wxarchive/internal/units"
)

var ecowittMain = []string{
	"Indoor Temperature(℃)",
	"Indoor Humidity(%)",
	"Outdoor Temperature(℃)",
	"Outdoor Humidity(%)",
	"Dew Point(℃)",
	"Feels Like(℃)",
	"Wind(mph)",
	"Gust(mph)",
	"Wind Direction(°)",
	"Rain Rate(mm/h)",
	"Daily Rain(mm)",
	"Event Rain(mm)",
	"Hourly Rain(mm)",
	"Weekly Rain(mm)",
	"Monthly Rain(mm)",
	"Yearly Rain(mm)",
	"CH1 Temperature(℃)",
	"CH1 Humidity(%)",
}

func TestDiscoverStation(t *testing.T) {
	h := Discover(ecowittMain, Station)

	tests := []struct {
		metric  Metric
		primary string
		names   []string
		unit    units.Unit
	}{
		{Temperature, "Outdoor Temperature(℃)", []string{"Outdoor Temperature(℃)"}, units.Celsius},
		{DewPoint, "Dew Point(℃)", []string{"Dew Point(℃)"}, units.Celsius},
		{FeelsLike, "Feels Like(℃)", []string{"Feels Like(℃)"}, units.Celsius},
		{Wind, "Wind(mph)", []string{"Wind(mph)"}, units.MilesPerHour},
		{Gust, "Gust(mph)", []string{"Gust(mph)"}, units.MilesPerHour},
		{RainDaily, "Daily Rain(mm)", []string{"Daily Rain(mm)"}, units.Millimetres},
		{RainHourly, "Rain Rate(mm/h)", []string{"Rain Rate(mm/h)", "Hourly Rain(mm)"}, units.Millimetres},
		{Rain, "Daily Rain(mm)", []string{"Daily Rain(mm)"}, units.Millimetres},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			hint := h.Get(tt.metric)
			assert.Equal(t, tt.primary, hint.Primary)
			assert.Equal(t, tt.names, hint.Names())
			require.NotEmpty(t, hint.Candidates)
			assert.Equal(t, hint.Primary, hint.Candidates[0].Name)
			assert.Equal(t, tt.unit, hint.Candidates[0].Unit)
		})
	}
}

func TestDiscoverChannel(t *testing.T) {
	names := []string{
		"Time",
		"CH1 Temperature(℃)",
		"CH1 Humidity(%)",
		"CH2 Temperature(℉)",
		"ch2_Dew Point(℉)",
		"CH2 Temperature(℉)",
		"CH12 Temperature(℃)",
	}

	h := Discover(names, Channel(2))
	temp := h.Get(Temperature)
	assert.Equal(t, "CH2 Temperature(℉)", temp.Primary)
	assert.Equal(t, []string{"CH2 Temperature(℉)"}, temp.Names(), "duplicates suppressed")
	assert.Equal(t, units.Fahrenheit, temp.Candidates[0].Unit)
	assert.Equal(t, "ch2_Dew Point(℉)", h.Get(DewPoint).Primary)

	assert.False(t, Discover(names, Channel(3)).Get(Temperature).Found())
	assert.Equal(t, "CH12 Temperature(℃)", Discover(names, Channel(12)).Get(Temperature).Primary)
	assert.False(t, Discover(names, Station).Get(Temperature).Found(), "channel columns are not station columns")
}

func TestDiscoverGerman(t *testing.T) {
	names := []string{
		"Zeit",
		"Innentemperatur(℃)",
		"Temperatur Außen(℃)",
		"Taupunkt(℃)",
		"Gefühlte Temperatur(℃)",
		"Windgeschwindigkeit(km/h)",
		"Böe(km/h)",
		"Windrichtung(°)",
		"Regenrate(mm/h)",
		"Regen Tag(mm)",
		"Regen Woche(mm)",
		"Niederschlag(mm)",
	}
	h := Discover(names, Station)

	assert.Equal(t, []string{"Temperatur Außen(℃)"}, h.Get(Temperature).Names())
	assert.Equal(t, "Taupunkt(℃)", h.Get(DewPoint).Primary)
	assert.Equal(t, "Gefühlte Temperatur(℃)", h.Get(FeelsLike).Primary)
	assert.Equal(t, "Windgeschwindigkeit(km/h)", h.Get(Wind).Primary)
	assert.Equal(t, units.KilometresPerHour, h.Get(Wind).Candidates[0].Unit)
	assert.Equal(t, "Böe(km/h)", h.Get(Gust).Primary)
	assert.Equal(t, "Regenrate(mm/h)", h.Get(RainHourly).Primary)
	assert.Equal(t, "Regen Tag(mm)", h.Get(RainDaily).Primary)
	assert.Equal(t, []string{"Regen Tag(mm)", "Niederschlag(mm)"}, h.Get(Rain).Names())
}

func TestDiscoverGermanRainPeriods(t *testing.T) {
	tests := []struct {
		name   string
		names  []string
		daily  string
		hourly string
		rain   []string
	}{
		{
			name:   "umlauts",
			names:  []string{"Zeit", "Temperatur(℃)", "Stündlicher Regen(mm)", "Täglicher Regen(mm)", "Wöchentlicher Regen(mm)", "Jährlicher Regen(mm)", "Ereignis Regen(mm)"},
			daily:  "Täglicher Regen(mm)",
			hourly: "Stündlicher Regen(mm)",
			rain:   []string{"Täglicher Regen(mm)"},
		},
		{
			name:   "ascii",
			names:  []string{"Zeit", "Temperatur(℃)", "Stuendlicher Regen(mm)", "Taeglicher Regen(mm)", "Woechentlicher Regen(mm)", "Jaehrlicher Regen(mm)", "Monatlicher Regen(mm)"},
			daily:  "Taeglicher Regen(mm)",
			hourly: "Stuendlicher Regen(mm)",
			rain:   []string{"Taeglicher Regen(mm)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Discover(tt.names, Station)
			assert.Equal(t, tt.daily, h.Get(RainDaily).Primary)
			assert.Equal(t, tt.hourly, h.Get(RainHourly).Primary)
			assert.Equal(t, tt.rain, h.Get(Rain).Names())
		})
	}
}

func TestDiscoverCompactKeys(t *testing.T) {
	names := []string{"dateutc", "tempinf", "tempf", "dewptf", "feelslikef", "windspeedmph", "windgustmph", "winddir", "hourlyrainin", "dailyrainin", "totalrainin"}
	h := Discover(names, Station)

	assert.Equal(t, "tempf", h.Get(Temperature).Primary)
	assert.Equal(t, units.Fahrenheit, h.Get(Temperature).Candidates[0].Unit)
	assert.Equal(t, "dewptf", h.Get(DewPoint).Primary)
	assert.Equal(t, "feelslikef", h.Get(FeelsLike).Primary)
	assert.Equal(t, []string{"windspeedmph"}, h.Get(Wind).Names())
	assert.Equal(t, []string{"windgustmph"}, h.Get(Gust).Names())
	assert.Equal(t, units.Inches, h.Get(RainDaily).Candidates[0].Unit)
	assert.Equal(t, []string{"dailyrainin", "totalrainin"}, h.Get(Rain).Names())
}

func TestRequire(t *testing.T) {
	h := Discover([]string{"Time", "Humidity(%)"}, Channel(4))
	err := h.Require(Temperature)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
	assert.Contains(t, err.Error(), "ch4")

	h = Discover(ecowittMain, Station)
	assert.NoError(t, h.Require(Temperature, Wind, Gust))
}

func TestDescriptorConversion(t *testing.T) {
	d := Descriptor{Name: "Wind(mph)", Metric: Wind, Unit: units.MilesPerHour}
	assert.True(t, d.NeedsNormalization())
	assert.InDelta(t, 16.0934, d.Conversion().Apply(10), 1e-9)

	temp := Descriptor{Name: "tempf", Metric: Temperature, Unit: units.Fahrenheit}
	assert.False(t, temp.NeedsNormalization())
	assert.InDelta(t, 100.0, temp.Conversion().Apply(212), 1e-9)
}

func TestSpeedConversions(t *testing.T) {
	names := []string{"Time", "Wind(mph)", "Gust(km/h)", "CH1 Wind(m/s)", "Wind Direction(°)", "Outdoor Temperature(℉)"}
	got := SpeedConversions(names)

	require.Len(t, got, 2)
	assert.Equal(t, units.MilesPerHour.ToCanonical(), got["Wind(mph)"])
	assert.Equal(t, units.MetresPerSecond.ToCanonical(), got["CH1 Wind(m/s)"])
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{"": Station, "station": Station, "3": Channel(3), "ch3": Channel(3), "CH 7": Channel(7)} {
		got, err := ParseScope(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseScope("chx")
	assert.Error(t, err)
	assert.Equal(t, "ch5", Channel(5).String())
	assert.Equal(t, 12, ChannelOf("CH12 Temperature"))
	assert.Equal(t, 0, ChannelOf("Chill"))
}
