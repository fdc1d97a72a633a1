package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/grafov/m3u8"
)

// parseM3U decodes a playlist into titles. The grafov decoder handles
// well-formed playlists; providers that emit loose EXTINF soup fall back to a
// line scanner.
func parseM3U(body []byte, sourceName, sourceURL string) ([]Title, error) {
	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(strings.NewReader(string(body))), true)
	if err == nil {
		return titlesFromGrafov(playlist, listType, sourceName, sourceURL), nil
	}

	titles := parseM3UFallback(strings.NewReader(string(body)), sourceName)
	if len(titles) == 0 {
		return nil, fmt.Errorf("playlist decode failed: %w", err)
	}
	return titles, nil
}

func titlesFromGrafov(playlist m3u8.Playlist, listType m3u8.ListType, sourceName, sourceURL string) []Title {
	var titles []Title

	switch listType {
	case m3u8.MEDIA:
		// a bare media playlist is one playable stream, not a catalog
		titles = append(titles, Title{
			SourceName: sourceName,
			Name:       "Direct Stream",
			URL:        sourceURL,
		})

	case m3u8.MASTER:
		masterpl := playlist.(*m3u8.MasterPlaylist)
		for _, variant := range masterpl.Variants {
			if variant == nil {
				break
			}

			name := variant.Name
			if name == "" && variant.Resolution != "" {
				name = fmt.Sprintf("Stream_%s", variant.Resolution)
			} else if name == "" {
				name = fmt.Sprintf("Stream_%d", variant.Bandwidth)
			}

			titles = append(titles, Title{
				SourceName: sourceName,
				Name:       name,
				URL:        variant.URI,
			})
		}
	}

	return titles
}

// parseM3UFallback scans EXTINF/URL pairs out of playlists the strict decoder
// rejects.
func parseM3UFallback(reader io.Reader, sourceName string) []Title {
	var titles []Title
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var currentAttrs map[string]string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "#EXTINF:") {
			currentAttrs = parseEXTINF(line)
		} else if currentAttrs != nil && (strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://")) {
			title := Title{
				SourceName: sourceName,
				Name:       currentAttrs["tvg-name"],
				URL:        line,
				Group:      currentAttrs["group-title"],
				MetadataID: currentAttrs["tmdb-id"],
			}
			if title.Name == "" {
				title.Name = "Unknown"
			}
			titles = append(titles, title)
			currentAttrs = nil
		}
	}

	return titles
}

// parseEXTINF splits one EXTINF line into its attributes and the trailing
// channel name.
func parseEXTINF(line string) map[string]string {
	attrs := make(map[string]string)

	line = strings.TrimPrefix(line, "#EXTINF:")

	// the name follows the last comma outside quotes
	lastComma := -1
	inQuotes := false
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == '"' {
			inQuotes = !inQuotes
		} else if line[i] == ',' && !inQuotes {
			lastComma = i
			break
		}
	}
	if lastComma == -1 {
		return attrs
	}

	attrPart := strings.TrimSpace(line[:lastComma])
	channelName := strings.TrimSpace(line[lastComma+1:])

	parts := strings.Fields(attrPart)
	if len(parts) > 0 {
		attrs["duration"] = parts[0]
	}
	for i := 1; i < len(parts); i++ {
		part := parts[i]
		if eqIdx := strings.Index(part, "="); eqIdx != -1 {
			key := part[:eqIdx]
			value := strings.Trim(part[eqIdx+1:], "\"")
			attrs[key] = value
		}
	}

	if channelName != "" {
		attrs["tvg-name"] = channelName
	}

	return attrs
}
