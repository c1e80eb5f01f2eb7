package config

// RolloutMode says how the margin-nudge pipeline behaves for one user.
type RolloutMode string

const (
	// RolloutEnabled runs the pipeline and returns nudges.
	RolloutEnabled RolloutMode = "enabled"
	// RolloutShadow runs the full pipeline (including persistence) but the
	// response nudge list is always empty. Used to evaluate tuning changes
	// against real traffic without showing anything.
	RolloutShadow RolloutMode = "shadow"
	// RolloutOff skips the pipeline entirely.
	RolloutOff RolloutMode = "off"
)

// RolloutPolicy decides per user whether nudges are enabled, shadowed, or off.
// With no lists configured everyone is enabled.
type RolloutPolicy struct {
	enabled       map[string]bool
	shadow        map[string]bool
	openByDefault bool
}

// NewRolloutPolicy builds a policy from allow-lists. With no lists
// configured, every user is enabled.
func NewRolloutPolicy(cfg RolloutConfig) *RolloutPolicy {
	p := &RolloutPolicy{
		enabled: make(map[string]bool, len(cfg.EnabledUsers)),
		shadow:  make(map[string]bool, len(cfg.ShadowUsers)),
	}
	for _, u := range cfg.EnabledUsers {
		p.enabled[u] = true
	}
	for _, u := range cfg.ShadowUsers {
		p.shadow[u] = true
	}
	p.openByDefault = len(p.enabled) == 0 && len(p.shadow) == 0
	return p
}

// ModeFor returns the rollout mode for a user.
func (p *RolloutPolicy) ModeFor(userID string) RolloutMode {
	if p == nil || p.openByDefault {
		return RolloutEnabled
	}
	if p.enabled[userID] {
		return RolloutEnabled
	}
	if p.shadow[userID] {
		return RolloutShadow
	}
	return RolloutOff
}
