package logging

import (
	"net/url"
	"regexp"
)

// Patterns for sensitive data redaction
var (
	basicAuthPattern  = regexp.MustCompile(`Basic\s+[A-Za-z0-9+/]+=*`)
	bearerPattern     = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`)
	apiKeyPattern     = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|password)["']?\s*[:=]\s*["']?[A-Za-z0-9\-._~+/]+=*`)
	authHeaderPattern = regexp.MustCompile(`(?i)authorization["']?\s*[:=]\s*["']?[^\s"']+(\s+[^\s"',]+)?`)
	urlUserPattern    = regexp.MustCompile(`(https?://)[^/\s:@]+:[^/\s@]+@`)
)

// RedactSensitiveData masks credentials that may appear in messages or field values
func RedactSensitiveData(s string) string {
	s = authHeaderPattern.ReplaceAllString(s, "Authorization: [REDACTED]")
	s = basicAuthPattern.ReplaceAllString(s, "Basic [REDACTED]")
	s = bearerPattern.ReplaceAllString(s, "Bearer [REDACTED]")
	s = apiKeyPattern.ReplaceAllString(s, "$1=[REDACTED]")
	s = urlUserPattern.ReplaceAllString(s, "${1}[REDACTED]@")
	return s
}

// RedactURL strips userinfo from u for logging
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.User == nil {
		return u.String()
	}
	clone := *u
	clone.User = url.User("[REDACTED]")
	return clone.String()
}
