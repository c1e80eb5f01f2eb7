package llm

import "fmt"

// GenerationPrompt builds the candidate-drafting prompt. The context block
// holds the strongest retrieved memories and implications; the oracle may
// return zero candidates, and most often should.
func GenerationPrompt(paragraph, fullEntry, memories, implications string) string {
	entryBlock := ""
	if fullEntry != "" {
		entryBlock = fmt.Sprintf("\nENTRY SO FAR:\n%s\n", fullEntry)
	}
	return fmt.Sprintf(`You are a margin-nudge system for a personal journal. The user is writing
the paragraph below. You have retrieved memories from their past that may connect to it.
%s
PARAGRAPH:
%s

RETRIEVED MEMORIES:
%s

IMPLICATIONS:
%s

Decide whether any memory supports a short, evidence-backed observation worth
surfacing in the margin. Three types are allowed, at most one candidate per type:
- tension: the paragraph contradicts or strains against a past memory
- callback: the paragraph echoes a specific past moment worth recalling
- eyebrow_raise: a surprising, non-obvious connection across domains

Rules:
- Silence is the default. If no memory clearly earns a nudge, return zero candidates.
- hook must be at most 22 words, specific, grounded in one evidence memory
- why_now explains why this matters for THIS paragraph
- action_prompt is one gentle question or suggestion for the writer
- evidence must reference a memory id from the list above
- confidence is your own 0-1 estimate that this nudge is worth the interruption
- Return ONLY a JSON object, no other text

Return:
{"candidates": [{
  "type": "tension|callback|eyebrow_raise",
  "hook": "...",
  "why_now": "...",
  "action_prompt": "...",
  "evidence": {"memory_id": 123, "date": "YYYY-MM-DD", "snippet": "..."},
  "confidence": 0.0
}]}

If nothing earns a nudge, return: {"candidates": []}`, entryBlock, paragraph, memories, implications)
}

// JudgePrompt builds the utility-scoring prompt for surviving drafts.
// Each axis is scored independently on 0-5.
func JudgePrompt(paragraph, candidates string) string {
	return fmt.Sprintf(`You are scoring margin-nudge candidates for a journaling app.
The user wrote this paragraph:

PARAGRAPH:
%s

CANDIDATES:
%s

Score each candidate by index on four independent 0-5 axes, plus an overall utility:
- tension: does it create productive friction with what the user is writing?
- actionability: could the user actually do something with it right now?
- novelty: does it tell the user something they don't already see on the page?
- specificity: is it grounded in a concrete memory rather than a generality?
- overall: 0-5, your holistic judgment of whether surfacing this helps the writer

Rules:
- Score every candidate, by its index in the list above
- Be harsh: most candidates score below 3 overall
- Return ONLY a JSON object, no other text

Return:
{"judgments": [{
  "index": 0,
  "tension": 0,
  "actionability": 0,
  "novelty": 0,
  "specificity": 0,
  "overall": 0.0
}]}`, paragraph, candidates)
}

// ConsolidationPrompt builds the prompt that proposes typed connections and
// implications across a user's recent memories.
func ConsolidationPrompt(memories string) string {
	return fmt.Sprintf(`You are a memory consolidation system for a personal journal.
Below are recent memories, each with an id.

MEMORIES:
%s

Propose connections between memory pairs and higher-order implications.

Connection types: causal, thematic, contradiction, pattern, temporal_sequence,
cross_domain, sensory, deviation, escalation.

Implication types: predictive, emotional, relational, identity, behavioral,
actionable, absence, trajectory, meta_cognitive, retrograde, counterfactual.

Rules:
- Only propose connections with genuine signal; weight reflects confidence (0-1)
- reason is one short sentence
- An implication cites the memory ids it derives from
- Return ONLY a JSON object, no other text

Return:
{"connections": [{"memory_a": 1, "memory_b": 2, "type": "thematic", "weight": 0.7, "reason": "..."}],
 "implications": [{"content": "...", "type": "behavioral", "source_memory_ids": [1, 2], "strength": 0.8}]}

If nothing worth consolidating, return: {"connections": [], "implications": []}`, memories)
}
