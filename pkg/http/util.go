package http

import (
	"fmt"
	"net/url"
	"strings"
)

// BaseURL turns a configured domain into an absolute base URL. Bare hosts get
// an https scheme; values that already carry a scheme are kept as they are.
func BaseURL(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

func BuildURL(baseURL, path string, queryParams map[string]string) (string, error) {
	// Parse the base URL
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}

	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/") + path

	if len(queryParams) > 0 {
		q := url.Values{}
		for key, value := range queryParams {
			q.Set(key, value)
		}
		parsedURL.RawQuery = q.Encode()
	}

	return parsedURL.String(), nil
}
