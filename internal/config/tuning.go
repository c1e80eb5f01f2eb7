package config

// TuningConfig is the full set of margin-nudge knobs. Client-side fields are
// echoed back to the editor (debounce, cooldowns); server-side fields gate
// retrieval signal and candidate quality. Presets are named value-sets of
// this one struct; there are no per-preset code paths.
type TuningConfig struct {
	// Client-side
	DebounceMs             int `json:"debounce_ms"`
	MinQueryGapMs          int `json:"min_query_gap_ms"`
	EntryCooldownMs        int `json:"entry_cooldown_ms"`
	MaxAnnotationsPerEntry int `json:"max_annotations_per_entry"`
	MinParagraphChars      int `json:"min_paragraph_chars"`
	MinParagraphWords      int `json:"min_paragraph_words"`

	// Server-side: retrieval signal
	MinActivation     float64 `json:"min_activation"`      // strong-memory floor
	MinTopActivation  float64 `json:"min_top_activation"`  // lower clear-signal threshold
	MinTopGap         float64 `json:"min_top_gap"`         // top-vs-second separation
	StrongTopOverride float64 `json:"strong_top_override"` // top score that passes alone

	// Server-side: candidate quality
	MinOracleConfidence float64 `json:"min_oracle_confidence"`
	MinOverallUtility   float64 `json:"min_overall_utility"`
	MinSpecificity      float64 `json:"min_specificity"`
	MinActionability    float64 `json:"min_actionability"`

	// Server-side: oracle context size
	MaxContextMemories     int `json:"max_context_memories"`
	MaxContextImplications int `json:"max_context_implications"`
}

// Balanced is the default preset.
func Balanced() TuningConfig {
	return TuningConfig{
		DebounceMs:             1200,
		MinQueryGapMs:          4000,
		EntryCooldownMs:        45000,
		MaxAnnotationsPerEntry: 3,
		MinParagraphChars:      80,
		MinParagraphWords:      20,

		MinActivation:     0.12,
		MinTopActivation:  0.18,
		MinTopGap:         0.05,
		StrongTopOverride: 0.30,

		MinOracleConfidence: 0.55,
		MinOverallUtility:   3.6,
		MinSpecificity:      2.5,
		MinActionability:    2.0,

		MaxContextMemories:     6,
		MaxContextImplications: 3,
	}
}

// Subtle raises every bar: fewer, better nudges.
func Subtle() TuningConfig {
	t := Balanced()
	t.EntryCooldownMs = 90000
	t.MaxAnnotationsPerEntry = 1
	t.MinParagraphWords = 30
	t.MinActivation = 0.16
	t.MinTopActivation = 0.24
	t.MinTopGap = 0.08
	t.StrongTopOverride = 0.38
	t.MinOracleConfidence = 0.70
	t.MinOverallUtility = 4.2
	t.MinSpecificity = 3.0
	t.MinActionability = 2.5
	return t
}

// Generous lowers the bars for users who want more margin activity.
func Generous() TuningConfig {
	t := Balanced()
	t.EntryCooldownMs = 20000
	t.MaxAnnotationsPerEntry = 5
	t.MinParagraphWords = 12
	t.MinActivation = 0.08
	t.MinTopActivation = 0.12
	t.MinTopGap = 0.03
	t.StrongTopOverride = 0.22
	t.MinOracleConfidence = 0.40
	t.MinOverallUtility = 3.0
	t.MinSpecificity = 2.0
	t.MinActionability = 1.5
	return t
}

// Presets maps preset names to their values.
func Presets() map[string]TuningConfig {
	return map[string]TuningConfig{
		"subtle":   Subtle(),
		"balanced": Balanced(),
		"generous": Generous(),
	}
}

// PresetByName returns a preset and whether the name is known.
func PresetByName(name string) (TuningConfig, bool) {
	t, ok := Presets()[name]
	return t, ok
}
