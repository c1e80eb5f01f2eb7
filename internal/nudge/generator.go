package nudge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/marginalia/internal/config"
	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/llm"
	"github.com/lazypower/marginalia/internal/store"
)

const (
	maxHookWords    = 22
	minWhyNowChars  = 10
	oracleTimeout   = 10 * time.Second
	snippetMaxChars = 120
)

// evaluateSignal decides whether retrieval surfaced enough to justify
// an oracle call. Weak or ambiguous activation stops the pipeline here
// so the model is never asked to invent relevance.
func evaluateSignal(res *engine.Result, cfg config.TuningConfig) RetrievalStats {
	top, second := res.TopScores()
	strong := 0
	for _, m := range res.Memories {
		if m.Activation >= cfg.MinActivation {
			strong++
		}
	}
	stats := RetrievalStats{
		MemoriesScored: len(res.Memories),
		StrongMemories: strong,
		TopActivation:  top,
		SecondBest:     second,
		Implications:   len(res.Implications),
	}
	if strong == 0 && len(res.Implications) == 0 {
		return stats
	}
	switch {
	case top >= cfg.StrongTopOverride:
		stats.ClearSignal = true
	case top >= cfg.MinTopActivation && top-second >= cfg.MinTopGap:
		stats.ClearSignal = true
	case top >= cfg.MinTopActivation && strong >= 2:
		stats.ClearSignal = true
	}
	return stats
}

func memoriesBlock(memories []engine.ScoredMemory, max int) string {
	if len(memories) > max {
		memories = memories[:max]
	}
	var b strings.Builder
	for _, m := range memories {
		fmt.Fprintf(&b, "[id %d] (%s, %s) %s\n", m.Memory.ID, m.Memory.SourceDate, m.Memory.Source, m.Memory.Content)
	}
	return b.String()
}

func implicationsBlock(imps []store.Implication, max int) string {
	if len(imps) > max {
		imps = imps[:max]
	}
	var b strings.Builder
	for _, imp := range imps {
		fmt.Fprintf(&b, "(%s) %s\n", imp.Type, imp.Content)
	}
	return b.String()
}

// generate calls the drafting oracle and filters its candidates. It
// returns the surviving drafts, the raw candidate count, and a failure
// mode string when nothing survives.
func generate(ctx context.Context, oracle llm.Oracle, paragraph, fullEntry string, res *engine.Result, cfg config.TuningConfig) ([]Draft, int, string) {
	prompt := llm.GenerationPrompt(paragraph, fullEntry,
		memoriesBlock(res.Memories, cfg.MaxContextMemories),
		implicationsBlock(res.Implications, cfg.MaxContextImplications))

	cctx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()
	raw, err := oracle.Generate(cctx, prompt)
	if err != nil {
		return nil, 0, FailOracleError
	}

	drafts, status := ParseDrafts(raw)
	switch status {
	case NoJSON:
		return nil, 0, FailModelNoJSON
	case MalformedJSON:
		return nil, 0, FailModelMalformed
	case EmptyArray:
		return nil, 0, FailModelEmpty
	}

	inContext := make(map[int64]store.Memory, len(res.Memories))
	for _, m := range res.Memories {
		inContext[m.Memory.ID] = m.Memory
	}

	var (
		kept        []Draft
		textDropped int
		typeDropped int
		seenType    = make(map[string]bool)
	)
	for _, d := range drafts {
		if !store.ValidNudgeTypes[d.Type] || seenType[d.Type] {
			typeDropped++
			continue
		}
		if !draftTextOK(d, inContext) {
			textDropped++
			continue
		}
		d.Evidence = resolveEvidence(d.Evidence, inContext)
		seenType[d.Type] = true
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		if typeDropped > 0 && textDropped == 0 {
			return nil, len(drafts), FailModelTypeFiltered
		}
		return nil, len(drafts), FailModelTextFiltered
	}
	return kept, len(drafts), ""
}

// draftTextOK enforces the surface rules: a hook that fits in the
// margin, a non-trivial why-now, and evidence pointing at a memory the
// oracle was actually shown.
func draftTextOK(d Draft, inContext map[int64]store.Memory) bool {
	hook := strings.TrimSpace(d.Hook)
	if hook == "" || len(strings.Fields(hook)) > maxHookWords {
		return false
	}
	if len(strings.TrimSpace(d.WhyNow)) < minWhyNowChars {
		return false
	}
	if strings.TrimSpace(d.ActionPrompt) == "" {
		return false
	}
	if _, ok := inContext[d.Evidence.MemoryID]; !ok {
		return false
	}
	return true
}

// resolveEvidence fills in date and snippet from the cited memory when
// the oracle left them out or mangled them.
func resolveEvidence(ev Evidence, inContext map[int64]store.Memory) Evidence {
	mem, ok := inContext[ev.MemoryID]
	if !ok {
		return ev
	}
	ev.Date = mem.SourceDate
	if strings.TrimSpace(ev.Snippet) == "" {
		ev.Snippet = snippet(mem.Content)
	}
	return ev
}

func snippet(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= snippetMaxChars {
		return content
	}
	cut := content[:snippetMaxChars]
	if i := strings.LastIndex(cut, " "); i > snippetMaxChars/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
