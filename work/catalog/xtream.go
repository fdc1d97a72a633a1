package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stream-front/work/client"
)

// xcVODStream is one video-on-demand entry from an Xtream-codes
// get_vod_streams response. Only the fields the catalog needs are decoded.
type xcVODStream struct {
	StreamID           int             `json:"stream_id"`           // Identifier used to build the stream URL
	Name               string          `json:"name"`                // Display name
	CategoryID         string          `json:"category_id"`         // Provider category
	ContainerExtension string          `json:"container_extension"` // File format (mp4, mkv, ts)
	TMDB               json.RawMessage `json:"tmdb"`                // Metadata id, sent as string or number depending on panel
}

// xcSeries is one series entry from a get_series response.
type xcSeries struct {
	SeriesID   int             `json:"series_id"`
	Name       string          `json:"name"`
	CategoryID string          `json:"category_id"`
	TMDB       json.RawMessage `json:"tmdb"`
}

// importXtream pulls the VOD and series listings from an Xtream-codes panel
// and converts them to titles with provider-format stream URLs.
func importXtream(ctx context.Context, httpClient *client.HeaderSettingClient, baseURL, username, password, sourceName string) ([]Title, error) {
	var titles []Title

	vodURL := fmt.Sprintf("%s/player_api.php?username=%s&password=%s&action=get_vod_streams", baseURL, username, password)
	vod, err := fetchXCData[xcVODStream](ctx, httpClient, vodURL)
	if err != nil {
		return nil, fmt.Errorf("VOD listing failed: %w", err)
	}
	for _, stream := range vod {
		ext := stream.ContainerExtension
		if ext == "" {
			ext = "mp4"
		}
		titles = append(titles, Title{
			SourceName: sourceName,
			Name:       stream.Name,
			URL:        fmt.Sprintf("%s/movie/%s/%s/%d.%s", baseURL, username, password, stream.StreamID, ext),
			MetadataID: decodeTMDBID(stream.TMDB),
			Group:      "vod",
		})
	}

	seriesURL := fmt.Sprintf("%s/player_api.php?username=%s&password=%s&action=get_series", baseURL, username, password)
	series, err := fetchXCData[xcSeries](ctx, httpClient, seriesURL)
	if err != nil {
		// a panel without series content is still a usable source
		return titles, nil
	}
	for _, serie := range series {
		titles = append(titles, Title{
			SourceName: sourceName,
			Name:       serie.Name,
			URL:        fmt.Sprintf("%s/series/%s/%s/%d.ts", baseURL, username, password, serie.SeriesID),
			MetadataID: decodeTMDBID(serie.TMDB),
			Group:      "series",
		})
	}

	return titles, nil
}

// fetchXCData fetches and decodes one panel endpoint.
func fetchXCData[T any](ctx context.Context, httpClient *client.HeaderSettingClient, url string) ([]T, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var data []T
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return data, nil
}

// decodeTMDBID normalizes the panel's tmdb field, which arrives as a string,
// a number, or not at all. "0" and "null" mean no id.
func decodeTMDBID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "0" || asString == "null" {
			return ""
		}
		return asString
	}

	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if asNumber == 0 {
			return ""
		}
		return fmt.Sprintf("%d", asNumber)
	}

	return ""
}
