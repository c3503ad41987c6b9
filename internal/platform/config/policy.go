package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	pstrings "docverify/pkg/platform/strings"
)

// Policy is the operator-editable rule set: which countries may verify and
// which applicant fields each document type requires.
type Policy struct {
	Geo       GeoPolicy                 `toml:"geo"`
	Documents map[string]DocumentPolicy `toml:"documents"`
}

type GeoPolicy struct {
	// Deny lists ISO alpha-2 countries that are always rejected.
	Deny []string `toml:"deny"`
	// Allow, when non-empty, is the exhaustive list of accepted countries.
	Allow []string `toml:"allow"`
	// DevCountry is what loopback and private addresses resolve to.
	DevCountry string `toml:"dev_country"`
}

type DocumentPolicy struct {
	RequiredFields []string `toml:"required_fields"`
}

// DefaultPolicy is used when no policy file is configured and fills any
// document type a policy file leaves out.
func DefaultPolicy(devCountry string) Policy {
	return Policy{
		Geo: GeoPolicy{DevCountry: devCountry},
		Documents: map[string]DocumentPolicy{
			"birth_certificate":          {RequiredFields: []string{"full_name", "date_of_birth", "place_of_birth", "sex"}},
			"death_certificate":          {RequiredFields: []string{"full_name", "identity_number", "date_of_death", "place_of_death"}},
			"marriage_certificate":       {RequiredFields: []string{"spouse_1_name", "spouse_2_name", "date_of_marriage", "place_of_marriage"}},
			"identity_document":          {RequiredFields: []string{"full_name", "date_of_birth", "identity_number", "nationality"}},
			"passport":                   {RequiredFields: []string{"full_name", "date_of_birth", "nationality", "passport_number"}},
			"travel_document":            {RequiredFields: []string{"full_name", "date_of_birth", "nationality"}},
			"permanent_residence_permit": {RequiredFields: []string{"full_name", "date_of_birth", "nationality", "permit_number"}},
			"visa":                       {RequiredFields: []string{"full_name", "passport_number", "nationality", "visa_category"}},
			"refugee_status":             {RequiredFields: []string{"full_name", "date_of_birth", "country_of_origin", "file_number"}},
		},
	}
}

// Validate normalizes country codes in place and rejects malformed entries.
func (p *Policy) Validate() error {
	var errs []error
	norm := func(list []string, field string) []string {
		out := make([]string, 0, len(list))
		for _, c := range pstrings.DedupeAndTrimUpper(list) {
			if len(c) != 2 {
				errs = append(errs, fmt.Errorf("geo.%s: %q is not an alpha-2 country code", field, c))
				continue
			}
			out = append(out, c)
		}
		return out
	}
	p.Geo.Deny = norm(p.Geo.Deny, "deny")
	p.Geo.Allow = norm(p.Geo.Allow, "allow")
	p.Geo.DevCountry = strings.ToUpper(strings.TrimSpace(p.Geo.DevCountry))
	if len(p.Geo.DevCountry) != 2 {
		errs = append(errs, errors.New("geo.dev_country must be an alpha-2 country code"))
	}
	for _, c := range p.Geo.Allow {
		if slices.Contains(p.Geo.Deny, c) {
			errs = append(errs, fmt.Errorf("geo: %s is both allowed and denied", c))
		}
	}
	for docType, dp := range p.Documents {
		dp.RequiredFields = pstrings.DedupeAndTrimLower(dp.RequiredFields)
		p.Documents[docType] = dp
		if len(dp.RequiredFields) == 0 {
			errs = append(errs, fmt.Errorf("documents.%s: required_fields is empty", docType))
		}
	}
	return errors.Join(errs...)
}

// RequiredFields returns the required applicant fields for a document type.
func (p *Policy) RequiredFields(docType string) ([]string, bool) {
	dp, ok := p.Documents[docType]
	return dp.RequiredFields, ok
}

// LoadPolicy reads a TOML policy file on top of the defaults.
func LoadPolicy(path, devCountry string) (*Policy, error) {
	p := DefaultPolicy(devCountry)
	if path == "" {
		return &p, p.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var fromFile Policy
	if err := toml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	p.Geo.Deny = fromFile.Geo.Deny
	p.Geo.Allow = fromFile.Geo.Allow
	if fromFile.Geo.DevCountry != "" {
		p.Geo.DevCountry = fromFile.Geo.DevCountry
	}
	for docType, dp := range fromFile.Documents {
		p.Documents[docType] = dp
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PolicyStore hands out the current policy and swaps it atomically on reload.
type PolicyStore struct {
	path       string
	devCountry string
	current    atomic.Pointer[Policy]
	logger     *slog.Logger
}

func NewPolicyStore(path, devCountry string, logger *slog.Logger) (*PolicyStore, error) {
	p, err := LoadPolicy(path, devCountry)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger()
	}
	s := &PolicyStore{path: path, devCountry: devCountry, logger: logger}
	s.current.Store(p)
	return s, nil
}

// StaticPolicy wraps a fixed policy, for tests and tools.
func StaticPolicy(p Policy) *PolicyStore {
	s := &PolicyStore{logger: discardLogger()}
	s.current.Store(&p)
	return s
}

func (s *PolicyStore) Current() *Policy {
	return s.current.Load()
}

// Reload re-reads the file. An invalid file leaves the previous policy active.
func (s *PolicyStore) Reload() error {
	p, err := LoadPolicy(s.path, s.devCountry)
	if err != nil {
		return err
	}
	s.current.Store(p)
	return nil
}

// Watch reloads the policy whenever the file changes until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (s *PolicyStore) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch policy dir: %w", err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.ErrorContext(ctx, "policy reload rejected", "error", err, "path", s.path)
				continue
			}
			s.logger.InfoContext(ctx, "policy reloaded", "path", s.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "policy watcher error", "error", err)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
