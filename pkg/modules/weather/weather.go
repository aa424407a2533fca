// Package weather publishes the current conditions from the wttr.in
// JSON API, which needs no API key.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/module"
)

const moduleName = "weather"

const (
	defaultInterval = 30 * time.Minute
	requestTimeout  = 30 * time.Second
)

type wttrResponse struct {
	CurrentCondition []currentCondition `json:"current_condition"`
	NearestArea      []nearestArea      `json:"nearest_area"`
}

type currentCondition struct {
	TempC       string       `json:"temp_C"`
	TempF       string       `json:"temp_F"`
	FeelsLikeC  string       `json:"FeelsLikeC"`
	FeelsLikeF  string       `json:"FeelsLikeF"`
	Humidity    string       `json:"humidity"`
	WeatherDesc []namedValue `json:"weatherDesc"`
	WeatherCode string       `json:"weatherCode"`
}

type nearestArea struct {
	AreaName []namedValue `json:"areaName"`
	Country  []namedValue `json:"country"`
}

type namedValue struct {
	Value string `json:"value"`
}

// Module polls wttr.in and publishes one item with the temperature.
type Module struct {
	module.Base

	log     *zap.SugaredLogger
	client  *http.Client
	baseURL string

	mu  sync.Mutex
	cfg config.WeatherConfig
}

// Factory returns the module factory for the registry.
func Factory(log *zap.SugaredLogger) module.Factory {
	return module.Factory{
		Enabled: func(cfg *config.Config) bool {
			return cfg.Modules.Weather != nil && cfg.Modules.Weather.Enabled
		},
		New: func(cfg *config.Config) module.Module {
			return New(log, *cfg.Modules.Weather)
		},
	}
}

// New returns an unstarted weather module.
func New(log *zap.SugaredLogger, cfg config.WeatherConfig) *Module {
	return &Module{
		log:     log,
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: "https://wttr.in",
		cfg:     cfg,
	}
}

func (m *Module) Name() string { return moduleName }

func (m *Module) interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.IntervalSeconds > 0 {
		return time.Duration(m.cfg.IntervalSeconds) * time.Second
	}
	return defaultInterval
}

func (m *Module) Run(ctx context.Context, mc *module.Context) {
	m.poll(ctx, mc)

	timer := time.NewTimer(m.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.poll(ctx, mc)
			timer.Reset(m.interval())
		}
	}
}

func (m *Module) ReloadConfig(cfg *config.Config) bool {
	if cfg.Modules.Weather == nil {
		return false
	}
	m.mu.Lock()
	m.cfg = *cfg.Modules.Weather
	m.mu.Unlock()
	return true
}

// poll publishes the current conditions, or an empty list when the
// fetch fails so a stale reading is not shown forever.
func (m *Module) poll(ctx context.Context, mc *module.Context) {
	data, err := m.fetch(ctx)
	if err != nil {
		m.log.Warnw("weather fetch failed", "err", err)
		mc.PublishItems(moduleName, nil)
		return
	}
	item, err := m.makeItem(data)
	if err != nil {
		m.log.Warnw("weather response unusable", "err", err)
		mc.PublishItems(moduleName, nil)
		return
	}
	mc.PublishItems(moduleName, []module.Item{item})
}

func (m *Module) fetch(ctx context.Context) (*wttrResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.requestURL(), nil)
	if err != nil {
		return nil, err
	}
	// wttr.in serves plain clients better than browser user agents.
	req.Header.Set("User-Agent", "curl/7.68.0")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather api returned %s", resp.Status)
	}

	var data wttrResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding weather response: %w", err)
	}
	return &data, nil
}

func (m *Module) requestURL() string {
	m.mu.Lock()
	location := m.cfg.Location
	m.mu.Unlock()

	// The j1 format carries both Celsius and Fahrenheit readings.
	return fmt.Sprintf("%s/%s?format=j1", m.baseURL, url.PathEscape(location))
}

func (m *Module) makeItem(data *wttrResponse) (module.Item, error) {
	if len(data.CurrentCondition) == 0 {
		return module.Item{}, fmt.Errorf("no current conditions in response")
	}
	cond := data.CurrentCondition[0]

	m.mu.Lock()
	fahrenheit := strings.EqualFold(m.cfg.Units, "fahrenheit")
	m.mu.Unlock()

	temp, feelsLike, unit := cond.TempC, cond.FeelsLikeC, "°C"
	if fahrenheit {
		temp, feelsLike, unit = cond.TempF, cond.FeelsLikeF, "°F"
	}

	description := "Unknown"
	if len(cond.WeatherDesc) > 0 {
		description = cond.WeatherDesc[0].Value
	}

	tooltip := fmt.Sprintf("%s\n%s%s (feels like %s%s)\nHumidity: %s%%\n%s",
		description, temp, unit, feelsLike, unit, cond.Humidity, locationString(data.NearestArea))

	return module.NewItem(moduleName, "current", temp+unit).
		WithIcon(weatherIcon(cond.WeatherCode)).
		WithTooltip(tooltip), nil
}

func locationString(areas []nearestArea) string {
	if len(areas) == 0 {
		return "Unknown location"
	}
	city, country := "Unknown", ""
	if len(areas[0].AreaName) > 0 {
		city = areas[0].AreaName[0].Value
	}
	if len(areas[0].Country) > 0 {
		country = areas[0].Country[0].Value
	}
	if country == "" {
		return city
	}
	return city + ", " + country
}

// weatherIcon maps wttr.in weather codes to freedesktop icon names.
func weatherIcon(code string) string {
	switch code {
	case "113":
		return "weather-clear"
	case "116":
		return "weather-few-clouds"
	case "119", "122":
		return "weather-overcast"
	case "143", "248", "260":
		return "weather-fog"
	case "176", "263", "266", "293", "296", "353":
		return "weather-showers-scattered"
	case "299", "302", "305", "308", "356", "359":
		return "weather-showers"
	case "179", "182", "185", "227", "230", "317", "320", "323", "326",
		"329", "332", "335", "338", "368", "371", "374", "377":
		return "weather-snow"
	case "281", "284", "311", "314", "350", "362", "365":
		return "weather-snow"
	case "200", "386", "389", "392", "395":
		return "weather-storm"
	default:
		return "weather-few-clouds"
	}
}
