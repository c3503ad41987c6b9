package privacy

// Source is the scrubbed description of who asked. Its fields can only be set
// through ScrubSource, so anything holding a Source holds anonymized values.
type Source struct {
	ip        string
	userAgent string
}

// ScrubSource anonymizes raw request metadata.
func ScrubSource(rawIP, rawUserAgent string) Source {
	return Source{
		ip:        AnonymizeIP(rawIP),
		userAgent: AnonymizeUserAgent(rawUserAgent),
	}
}

// RestoreSource rebuilds a Source from values read back out of audit storage,
// which only ever holds anonymized data.
func RestoreSource(anonymizedIP, anonymizedUserAgent string) Source {
	return Source{ip: anonymizedIP, userAgent: anonymizedUserAgent}
}

func (s Source) IP() string        { return s.ip }
func (s Source) UserAgent() string { return s.userAgent }
