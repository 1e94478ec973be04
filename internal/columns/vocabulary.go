package columns

// Metric is a logical measurement a column can carry.
type Metric string

const (
	Temperature Metric = "temperature"
	DewPoint    Metric = "dew_point"
	FeelsLike   Metric = "feels_like"
	Wind        Metric = "wind"
	Gust        Metric = "gust"
	RainDaily   Metric = "rain_daily"
	RainHourly  Metric = "rain_hourly"
	Rain        Metric = "rain"
)

// Metrics lists every metric in discovery order.
var Metrics = []Metric{Temperature, DewPoint, FeelsLike, Wind, Gust, RainDaily, RainHourly, Rain}

// Entry describes how vendor headers name one metric. Stems and Exclude are
// matched as substrings of the folded header: lower case with every
// non-alphanumeric rune removed, so "Daily Rain(mm)" folds to "dailyrainmm"
// and also matches the compact key "dailyrainin".
type Entry struct {
	Metric  Metric
	Stems   []string
	Exclude []string
}

// Vocabulary covers English and German console exports as well as the compact
// keys used by Ecowitt and Weather Underground uploads. Extend it here when a
// new vendor shows up.
var Vocabulary = []Entry{
	{
		Metric: Temperature,
		Stems:  []string{"temperature", "temperatur", "temp"},
		Exclude: []string{
			"dew", "taupunkt", "feels", "gefühl", "heat", "hitze", "wärme", "waerme",
			"index", "chill", "apparent", "soil", "boden", "water", "wasser",
		},
	},
	{
		Metric: DewPoint,
		Stems:  []string{"dewpoint", "dewpt", "taupunkt"},
	},
	{
		Metric: FeelsLike,
		Stems: []string{
			"feelslike", "feels", "heatindex", "apparent", "wärmeindex", "waermeindex",
			"hitzeindex", "gefühltetemperatur", "gefühlt",
		},
	},
	{
		Metric:  Wind,
		Stems:   []string{"windspeed", "windgeschwindigkeit", "wind"},
		Exclude: []string{"gust", "böe", "boe", "dir", "richtung", "chill", "kühle", "run"},
	},
	{
		Metric: Gust,
		Stems:  []string{"gust", "böe", "boe"},
	},
	{
		Metric: RainDaily,
		Stems: []string{
			"dailyrain", "rainday", "raintoday", "tagesregen", "regentag", "regenheute",
			"täglich", "taeglich",
		},
	},
	{
		Metric: RainHourly,
		Stems: []string{
			"hourlyrain", "rainhour", "rainrate", "regenrate", "stundenregen", "regenstunde",
			"stündlich", "stuendlich",
		},
	},
	{
		Metric: Rain,
		Stems:  []string{"rain", "regen", "niederschlag", "precip"},
		Exclude: []string{
			"rate", "hour", "stunde", "stünd", "stuend", "event", "ereignis",
			"week", "woche", "wöch", "woech", "month", "monat", "year", "jahr",
			"jähr", "jaehr",
		},
	},
}

// indoorMarkers exclude console-internal sensors from the station scope.
var indoorMarkers = []string{"indoor", "innen", "tempin", "humidityin"}
