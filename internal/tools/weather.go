package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// WeatherToolName is the name the model uses to address weather lookup.
const WeatherToolName = "openweathermap-api"

const openWeatherMapURL = "https://api.openweathermap.org/data/2.5/weather"

// ErrNoWeatherKey is returned when the weather adapter is built without a key.
var ErrNoWeatherKey = errors.New("weather: api key is required")

// Weather looks up current conditions from OpenWeatherMap.
type Weather struct {
	opts   Options
	apiKey string
}

// NewWeather creates the weather adapter. apiKey must be non-empty.
func NewWeather(apiKey string, opts Options) (*Weather, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoWeatherKey
	}
	opts, err := opts.withDefaults(openWeatherMapURL)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	return &Weather{opts: opts, apiKey: apiKey}, nil
}

// Name returns the tool name.
func (w *Weather) Name() string { return WeatherToolName }

// Description returns the tool description.
func (w *Weather) Description() string {
	return "A wrapper around OpenWeatherMap API. Useful for fetching current weather information for a specified location. Input should be a location string (e.g. London,GB)."
}

type owmResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type owmError struct {
	Message string `json:"message"`
}

// Invoke fetches the current weather for a location.
func (w *Weather) Invoke(ctx context.Context, location string) (string, error) {
	location = strings.Trim(strings.TrimSpace(location), `"'`)
	if location == "" {
		return "", errors.New("weather: empty location")
	}

	body, status, err := get(ctx, w.opts.Client, w.opts.BaseURL, url.Values{
		"q":     {location},
		"appid": {w.apiKey},
		"units": {"metric"},
	})
	if err != nil {
		var apiErr owmError
		if status != 0 && json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("weather: %s: %w", apiErr.Message, err)
		}
		return "", fmt.Errorf("weather: %w", err)
	}

	var data owmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("weather: decode response: %w", err)
	}
	return formatWeather(location, data), nil
}

func formatWeather(location string, d owmResponse) string {
	place := location
	if d.Name != "" {
		place = d.Name
		if d.Sys.Country != "" {
			place += ", " + d.Sys.Country
		}
	}

	status := "unknown"
	if len(d.Weather) > 0 {
		status = d.Weather[0].Description
	}

	var b strings.Builder
	fmt.Fprintf(&b, "In %s, the current weather is as follows:\n", place)
	fmt.Fprintf(&b, "Detailed status: %s\n", status)
	fmt.Fprintf(&b, "Wind speed: %.1f m/s, direction: %d°\n", d.Wind.Speed, d.Wind.Deg)
	fmt.Fprintf(&b, "Humidity: %d%%\n", d.Main.Humidity)
	b.WriteString("Temperature:\n")
	fmt.Fprintf(&b, "  - Current: %.1f°C\n", d.Main.Temp)
	fmt.Fprintf(&b, "  - High: %.1f°C\n", d.Main.TempMax)
	fmt.Fprintf(&b, "  - Low: %.1f°C\n", d.Main.TempMin)
	fmt.Fprintf(&b, "  - Feels like: %.1f°C\n", d.Main.FeelsLike)
	fmt.Fprintf(&b, "Cloud cover: %d%%", d.Clouds.All)
	return b.String()
}
