package privacy

import "regexp"

type redaction struct {
	kind    string
	pattern *regexp.Regexp
}

// Order matters: the more specific identifiers are replaced before the generic
// digit run rule can swallow them.
var redactions = []redaction{
	{kind: "email", pattern: regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
	{kind: "national_id", pattern: regexp.MustCompile(`\b\d{13}\b`)},
	{kind: "passport", pattern: regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`)},
	{kind: "phone", pattern: regexp.MustCompile(`(?:\+\d{1,3}[\s\-]?)?(?:\(\d{2,4}\)[\s\-]?)?\d{2,4}[\s\-]\d{3,4}[\s\-]?\d{3,4}\b`)},
	{kind: "number", pattern: regexp.MustCompile(`\d{9,}`)},
}

// ScrubFreeText replaces identity numbers, e-mail addresses, phone numbers and
// long digit runs with "[REDACTED:<kind>]" markers.
func ScrubFreeText(text string) string {
	for _, r := range redactions {
		text = r.pattern.ReplaceAllString(text, "[REDACTED:"+r.kind+"]")
	}
	return text
}
