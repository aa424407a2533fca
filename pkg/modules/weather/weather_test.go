package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
)

const sampleResponse = `{
	"current_condition": [{
		"temp_C": "18",
		"temp_F": "64",
		"FeelsLikeC": "17",
		"FeelsLikeF": "63",
		"humidity": "72",
		"weatherDesc": [{"value": "Partly cloudy"}],
		"weatherCode": "116"
	}],
	"nearest_area": [{
		"areaName": [{"value": "Manchester"}],
		"country": [{"value": "United Kingdom"}]
	}]
}`

func newTestModule(cfg config.WeatherConfig) *Module {
	return New(zap.NewNop().Sugar(), cfg)
}

func TestFetchAndMakeItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "j1", r.URL.Query().Get("format"))
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	m := newTestModule(config.WeatherConfig{Enabled: true})
	m.baseURL = srv.URL

	data, err := m.fetch(context.Background())
	require.NoError(t, err)

	item, err := m.makeItem(data)
	require.NoError(t, err)
	assert.Equal(t, "weather:current", item.ID)
	assert.Equal(t, "18°C", item.Label)
	assert.Equal(t, "weather-few-clouds", item.IconName)
	assert.Contains(t, item.Tooltip, "Partly cloudy")
	assert.Contains(t, item.Tooltip, "feels like 17°C")
	assert.Contains(t, item.Tooltip, "Humidity: 72%")
	assert.Contains(t, item.Tooltip, "Manchester, United Kingdom")
}

func TestMakeItemFahrenheit(t *testing.T) {
	m := newTestModule(config.WeatherConfig{Enabled: true, Units: "Fahrenheit"})

	data := &wttrResponse{
		CurrentCondition: []currentCondition{{
			TempC: "18", TempF: "64", FeelsLikeC: "17", FeelsLikeF: "63",
			Humidity: "72", WeatherCode: "113",
		}},
	}
	item, err := m.makeItem(data)
	require.NoError(t, err)
	assert.Equal(t, "64°F", item.Label)
	assert.Contains(t, item.Tooltip, "feels like 63°F")
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := newTestModule(config.WeatherConfig{Enabled: true})
	m.baseURL = srv.URL

	_, err := m.fetch(context.Background())
	assert.Error(t, err)
}

func TestMakeItemEmptyResponse(t *testing.T) {
	m := newTestModule(config.WeatherConfig{Enabled: true})
	_, err := m.makeItem(&wttrResponse{})
	assert.Error(t, err)
}

func TestWeatherIcon(t *testing.T) {
	assert.Equal(t, "weather-clear", weatherIcon("113"))
	assert.Equal(t, "weather-few-clouds", weatherIcon("116"))
	assert.Equal(t, "weather-overcast", weatherIcon("122"))
	assert.Equal(t, "weather-fog", weatherIcon("248"))
	assert.Equal(t, "weather-showers-scattered", weatherIcon("296"))
	assert.Equal(t, "weather-showers", weatherIcon("308"))
	assert.Equal(t, "weather-snow", weatherIcon("332"))
	assert.Equal(t, "weather-snow", weatherIcon("314"))
	assert.Equal(t, "weather-storm", weatherIcon("389"))
	assert.Equal(t, "weather-few-clouds", weatherIcon("999"))
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "Unknown location", locationString(nil))
	assert.Equal(t, "Berlin", locationString([]nearestArea{{
		AreaName: []namedValue{{Value: "Berlin"}},
	}}))
	assert.Equal(t, "Berlin, Germany", locationString([]nearestArea{{
		AreaName: []namedValue{{Value: "Berlin"}},
		Country:  []namedValue{{Value: "Germany"}},
	}}))
}

func TestRequestURL(t *testing.T) {
	m := newTestModule(config.WeatherConfig{Enabled: true})
	assert.Equal(t, "https://wttr.in/?format=j1", m.requestURL())

	m.cfg.Location = "New York"
	assert.Equal(t, "https://wttr.in/New%20York?format=j1", m.requestURL())
}
