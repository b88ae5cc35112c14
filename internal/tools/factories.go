package tools

import (
	"net/http"

	"github.com/ashureev/multitool-assistant/internal/config"
)

// DefaultFactories returns the constructors for web search, weather and
// financial news, in that order.
func DefaultFactories(cfg *config.Config, client *http.Client) []Factory {
	opts := Options{Client: client, MaxResults: cfg.Tools.MaxResults}

	return []Factory{
		{
			Name: SearchToolName,
			New: func() (Tool, error) {
				return NewWebSearch(opts)
			},
		},
		{
			Name: WeatherToolName,
			New: func() (Tool, error) {
				if err := cfg.RequireWeatherKey(); err != nil {
					return nil, err
				}
				return NewWeather(cfg.WeatherAPIKey, opts)
			},
		},
		{
			Name: FinanceNewsToolName,
			New: func() (Tool, error) {
				return NewFinanceNews(opts)
			},
		},
	}
}
