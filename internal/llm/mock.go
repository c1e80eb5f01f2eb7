package llm

import "context"

// MockClient is a test double for the LLM Client interface.
type MockClient struct {
	Response *Response
	Err      error
	Calls    []string // records prompts sent
}

// Complete records the call and returns the mock response.
func (m *MockClient) Complete(ctx context.Context, prompt string) (*Response, error) {
	m.Calls = append(m.Calls, prompt)
	return m.Response, m.Err
}

// MockOracle is a scripted test double for the Oracle interface.
type MockOracle struct {
	GenerateResponse string
	GenerateErr      error
	JudgeResponse    string
	JudgeErr         error

	GenerateCalls []string
	JudgeCalls    []string
}

func (m *MockOracle) Generate(ctx context.Context, prompt string) (string, error) {
	m.GenerateCalls = append(m.GenerateCalls, prompt)
	return m.GenerateResponse, m.GenerateErr
}

func (m *MockOracle) Judge(ctx context.Context, prompt string) (string, error) {
	m.JudgeCalls = append(m.JudgeCalls, prompt)
	return m.JudgeResponse, m.JudgeErr
}
