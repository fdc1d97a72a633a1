package utils

import (
	"fmt"
	"net/url"
	"strings"

	"stream-front/work/config"
)

// LogURL returns either the original URL or an obfuscated version for logging
func LogURL(cfg *config.Config, url string) string {
	if cfg.ObfuscateUrls {
		return ObfuscateURL(url)
	}
	return url
}

// SanitizeTitle makes a display title safe for use in filenames and log lines
func SanitizeTitle(name string) string {
	sanitized := name
	replacements := map[string]string{
		" ":  "_",
		",":  "_",
		"\"": "",
		"'":  "",
		"/":  "_",
		"\\": "_",
		"?":  "_",
		"&":  "_",
		"=":  "_",
		":":  "_",
		";":  "_",
		"|":  "_",
		"*":  "_",
		"<":  "_",
		">":  "_",
	}

	for old, new := range replacements {
		sanitized = strings.ReplaceAll(sanitized, old, new)
	}

	// Remove consecutive underscores
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}

	return strings.Trim(sanitized, "_")
}

// FormatBytes renders a byte count in human-readable units
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// ObfuscateURL keeps scheme and host of a URL and masks path, query and fragment
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		// If parsing fails, just obfuscate the whole thing
		return "***OBFUSCATED***"
	}

	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}

	return result
}
