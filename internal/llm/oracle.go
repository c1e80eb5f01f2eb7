package llm

import "context"

// Oracle is the judgment-oracle abstraction the nudge pipeline depends on.
// Generate drafts candidates from retrieved context; Judge scores drafts.
// Both return raw model text; parsing and validation belong to the caller,
// which must treat the output as untrusted.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Judge(ctx context.Context, prompt string) (string, error)
}

// CompletionOracle adapts a plain completion Client into an Oracle.
// Both calls go through the same provider; they differ only in prompt.
type CompletionOracle struct {
	Client Client
}

// NewOracle wraps a Client as an Oracle.
func NewOracle(client Client) *CompletionOracle {
	return &CompletionOracle{Client: client}
}

func (o *CompletionOracle) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.Client.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (o *CompletionOracle) Judge(ctx context.Context, prompt string) (string, error) {
	resp, err := o.Client.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
