package dispatch

import "time"

// Policy is the timing of one target. Zero fields take DefaultPolicy values.
type Policy struct {
	Cooldown      time.Duration `yaml:"cooldown" json:"cooldown"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout" json:"ready_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval" json:"poll_interval"`
	FallbackChain bool          `yaml:"fallback_chain" json:"fallback_chain"`
	ChainGap      time.Duration `yaml:"chain_gap" json:"chain_gap"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DefaultPolicy suits most chat sites.
func DefaultPolicy() Policy {
	return Policy{
		Cooldown:     800 * time.Millisecond,
		ReadyTimeout: 600 * time.Millisecond,
		PollInterval: 80 * time.Millisecond,
		ChainGap:     200 * time.Millisecond,
		RetryDelay:   time.Second,
	}
}

// StrictPolicy is for sites that drop a send issued too soon after the
// previous one or before their composer settles.
func StrictPolicy() Policy {
	p := DefaultPolicy()
	p.Cooldown = 2 * time.Second
	p.ReadyTimeout = 2 * time.Second
	return p
}

// WithDefaults fills zero durations from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.Cooldown <= 0 {
		p.Cooldown = d.Cooldown
	}
	if p.ReadyTimeout <= 0 {
		p.ReadyTimeout = d.ReadyTimeout
	}
	if p.PollInterval <= 0 {
		p.PollInterval = d.PollInterval
	}
	if p.ChainGap <= 0 {
		p.ChainGap = d.ChainGap
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = d.RetryDelay
	}
	return p
}
