package outcome

import "time"

// Candidate is one ranked resolver match.
type Candidate struct {
	Selector   string  `json:"selector"`
	Priority   int     `json:"priority"`
	MatchCount int     `json:"match_count"`
	Unique     bool    `json:"unique"`
	Source     string  `json:"source"`
	Distance   float64 `json:"distance,omitempty"`
	Tag        string  `json:"tag"`
	Label      string  `json:"label,omitempty"`
}

// SelectorCheck is the state of a configured selector on a page.
type SelectorCheck struct {
	Selector   string `json:"selector"`
	Valid      bool   `json:"valid"`
	MatchCount int    `json:"match_count"`
	Visible    bool   `json:"visible"`
	Error      string `json:"error,omitempty"`
}

// RoleReport is the resolver's view of one role (input or send).
type RoleReport struct {
	Resolved   bool           `json:"resolved"`
	Selector   string         `json:"selector,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Source     string         `json:"source,omitempty"`
	Generated  string         `json:"generated,omitempty"`
	Configured *SelectorCheck `json:"configured,omitempty"`
	Candidates []Candidate    `json:"candidates,omitempty"`
}

// Suggestion is a site configuration derived from what resolved.
type Suggestion struct {
	InputSelector      string `json:"inputSelector,omitempty"`
	SendButtonSelector string `json:"sendButtonSelector,omitempty"`
	PreferEnter        bool   `json:"preferEnter"`
}

// Diagnosis is the result of probing a page.
type Diagnosis struct {
	ID          string     `json:"id"`
	URL         string     `json:"url,omitempty"`
	Hostname    string     `json:"hostname"`
	SiteID      string     `json:"site_id"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Input       RoleReport `json:"input"`
	Send        RoleReport `json:"send"`
	Suggested   Suggestion `json:"suggested"`
	Warnings    []string   `json:"warnings,omitempty"`
	ProbedAt    time.Time  `json:"probed_at"`
}
