package util

import (
	"net/url"
	"strings"
)

// SafeTruncate safely truncates a string to maxLen bytes without panicking.
// It is used when logging codes and state values, where only a prefix should
// be shown.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("very-long-code-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                 // Returns: "short"
//	SafeTruncate("test", -1)                  // Returns: ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// AppendQuery adds params to the query string of target. Parameters already
// present on target are kept; a key present in both is overwritten by params.
//
// Example:
//
//	AppendQuery("http://app/cb", url.Values{"code": {"abc"}}) // "http://app/cb?code=abc"
//	AppendQuery("http://app/cb?x=1", url.Values{"state": {"s"}}) // "http://app/cb?state=s&x=1"
func AppendQuery(target string, params url.Values) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for key, values := range params {
		q.Del(key)
		for _, v := range values {
			if v != "" {
				q.Add(key, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NormalizeURL removes trailing slashes so that a configured base URL can be
// joined with absolute paths.
//
// Example:
//
//	NormalizeURL("https://example.com/")   // Returns: "https://example.com"
//	NormalizeURL("https://example.com///") // Returns: "https://example.com"
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
