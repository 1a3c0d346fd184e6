package domain

// Settings is the process-wide filter configuration.
type Settings struct {
	Concurrency      int     `json:"concurrency" koanf:"concurrency"`
	FilterStrictness float64 `json:"filter_strictness" koanf:"filter_strictness"`
	Logging          bool    `json:"logging" koanf:"logging"`
}

// SettingsUpdate is a reconfiguration event; nil fields are left unchanged.
type SettingsUpdate struct {
	Concurrency      *int     `json:"concurrency,omitempty"`
	FilterStrictness *float64 `json:"filter_strictness,omitempty"`
	Logging          *bool    `json:"logging,omitempty"`
}

func (u SettingsUpdate) Empty() bool {
	return u.Concurrency == nil && u.FilterStrictness == nil && u.Logging == nil
}

// Merge returns s with the non-nil fields of u applied.
func (s Settings) Merge(u SettingsUpdate) Settings {
	if u.Concurrency != nil {
		s.Concurrency = *u.Concurrency
	}
	if u.FilterStrictness != nil {
		s.FilterStrictness = *u.FilterStrictness
	}
	if u.Logging != nil {
		s.Logging = *u.Logging
	}
	return s
}

// Update returns an update that sets every field to the values in s.
func (s Settings) Update() SettingsUpdate {
	c, f, l := s.Concurrency, s.FilterStrictness, s.Logging
	return SettingsUpdate{Concurrency: &c, FilterStrictness: &f, Logging: &l}
}

// Diff returns an update holding only the fields of s that differ from prev.
func (s Settings) Diff(prev Settings) SettingsUpdate {
	var u SettingsUpdate
	if s.Concurrency != prev.Concurrency {
		c := s.Concurrency
		u.Concurrency = &c
	}
	if s.FilterStrictness != prev.FilterStrictness {
		f := s.FilterStrictness
		u.FilterStrictness = &f
	}
	if s.Logging != prev.Logging {
		l := s.Logging
		u.Logging = &l
	}
	return u
}
