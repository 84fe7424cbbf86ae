package validate

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// URL validation errors
var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrDisallowedScheme = errors.New("URL scheme not allowed")
	ErrDisallowedDomain = errors.New("URL domain not allowed")
)

// URLConstraints defines validation constraints for URLs.
type URLConstraints struct {
	AllowedSchemes []string // e.g., []string{"https", "http"}
	AllowedDomains []string // If non-empty, only these domains and their subdomains are allowed
	MaxLength      int      // Maximum URL length (0 = no limit)
}

// YouTubeURLConstraints accepts http(s) links on YouTube's domains.
var YouTubeURLConstraints = URLConstraints{
	AllowedSchemes: []string{"https", "http"},
	AllowedDomains: []string{"youtube.com", "youtu.be", "youtube-nocookie.com"},
	MaxLength:      2048,
}

// URL validates a URL against the given constraints.
// Returns the trimmed URL string and an error if validation fails.
func URL(urlStr string, constraints URLConstraints) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", ErrEmpty
	}
	if constraints.MaxLength > 0 && len(urlStr) > constraints.MaxLength {
		return "", fmt.Errorf("%w: URL exceeds %d characters", ErrStringTooLong, constraints.MaxLength)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if len(constraints.AllowedSchemes) > 0 && !slices.Contains(constraints.AllowedSchemes, parsedURL.Scheme) {
		return "", fmt.Errorf("%w: got %q, allowed: %v", ErrDisallowedScheme, parsedURL.Scheme, constraints.AllowedSchemes)
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	if hostname == "" {
		return "", fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}

	if len(constraints.AllowedDomains) > 0 {
		allowed := slices.ContainsFunc(constraints.AllowedDomains, func(domain string) bool {
			return hostname == domain || strings.HasSuffix(hostname, "."+domain)
		})
		if !allowed {
			return "", fmt.Errorf("%w: %q not in allowlist", ErrDisallowedDomain, hostname)
		}
	}

	return urlStr, nil
}

// YouTubeSource validates user input that names a YouTube video or playlist.
// Bare IDs (no scheme) pass through trimmed; anything with a scheme must be a
// YouTube link.
func YouTubeSource(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmpty
	}
	if !strings.Contains(s, "://") {
		if strings.ContainsAny(s, " \t\n/") && !strings.HasPrefix(s, "youtu") && !strings.HasPrefix(s, "www.youtu") {
			return "", fmt.Errorf("%w: not a YouTube link or ID", ErrInvalidURL)
		}
		return s, nil
	}
	return URL(s, YouTubeURLConstraints)
}
