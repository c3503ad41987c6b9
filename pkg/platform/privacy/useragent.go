package privacy

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownAgent = "unknown"

// AnonymizeUserAgent reduces a User-Agent header to "<browser> <major>/<os>/<class>",
// lower-cased, where class is desktop, mobile or bot. The raw header is never returned.
func AnonymizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return unknownAgent
	}

	ua := useragent.New(raw)
	browser, version := ua.Browser()
	browser = normalizeToken(browser)
	major := unknownAgent
	if v, _, _ := strings.Cut(version, "."); v != "" {
		major = normalizeToken(v)
	}

	os := normalizeToken(ua.OSInfo().Name)

	class := "desktop"
	switch {
	case ua.Bot():
		class = "bot"
	case ua.Mobile():
		class = "mobile"
	}

	return browser + " " + major + "/" + os + "/" + class
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return unknownAgent
	}
	return strings.Join(strings.Fields(s), "-")
}
