package generator

import (
	"context"
	"errors"
	"strings"
)

// Agent turns an idea into raw model text under fixed constraints.
type Agent struct {
	llm         LLMClient
	constraints Constraints
}

func NewAgent(llm LLMClient, c Constraints) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: llm, constraints: c.withDefaults()}, nil
}

// Constraints returns the constraints every prompt is built with.
func (a *Agent) Constraints() Constraints {
	return a.constraints
}

// Generate makes exactly one model call. Empty output is an error.
func (a *Agent) Generate(ctx context.Context, idea string) (string, error) {
	prompt := BuildGenerationPrompt(GenerationRequest{Idea: idea, Constraints: a.constraints})
	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("model returned empty output")
	}
	return raw, nil
}
