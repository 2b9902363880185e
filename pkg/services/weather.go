package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const weatherHelp = "Weather service help: send a message in the format:\n" +
	"@weather <postcode or place>\n" +
	"Example:\n@weather Munich or @weather 82515"

type wttrReport struct {
	CurrentCondition []struct {
		TempC         string `json:"temp_C"`
		FeelsLikeC    string `json:"FeelsLikeC"`
		WindspeedKmph string `json:"windspeedKmph"`
		Humidity      string `json:"humidity"`
		WeatherDesc   []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
	Weather []struct {
		Hourly []struct {
			ChanceOfRain string `json:"chanceofrain"`
		} `json:"hourly"`
	} `json:"weather"`
}

// WeatherService reports current conditions from wttr.in.
type WeatherService struct {
	out     Replier
	baseURL string
	client  *http.Client
}

func NewWeatherService(out Replier, baseURL string) *WeatherService {
	if baseURL == "" {
		baseURL = "https://wttr.in"
	}
	return &WeatherService{out: out, baseURL: strings.TrimRight(baseURL, "/"), client: defaultHTTPClient()}
}

func (s *WeatherService) Name() string        { return "weather" }
func (s *WeatherService) Description() string { return "Current weather for a place." }

func (s *WeatherService) Handle(ctx context.Context, req Request) {
	place := strings.TrimSpace(req.Args)
	if place == "" {
		s.out.SendToNode(ctx, req.From, weatherHelp)
		return
	}
	s.out.SendToNode(ctx, req.From, s.lookup(ctx, place))
}

func (s *WeatherService) lookup(ctx context.Context, place string) string {
	location := strings.ReplaceAll(url.PathEscape(place), "%20", "+")
	var report wttrReport
	if err := getJSON(ctx, s.client, s.baseURL+"/"+location+"?format=j1", &report); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return fmt.Sprintf("Error retrieving the weather for %s.", place)
		}
		return "Error retrieving the weather: " + err.Error()
	}
	if len(report.CurrentCondition) == 0 || len(report.Weather) == 0 || len(report.Weather[0].Hourly) == 0 {
		return fmt.Sprintf("Error retrieving the weather for %s.", place)
	}

	cur := report.CurrentCondition[0]
	desc := ""
	if len(cur.WeatherDesc) > 0 {
		desc = cur.WeatherDesc[0].Value
	}
	return fmt.Sprintf("Weather for %s: %s, %s°C (feels like %s°C), wind: %s km/h, humidity: %s%%, chance of rain: %s%%",
		place, desc, cur.TempC, cur.FeelsLikeC, cur.WindspeedKmph, cur.Humidity, report.Weather[0].Hourly[0].ChanceOfRain)
}
