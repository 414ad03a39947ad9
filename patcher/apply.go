package patcher

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultApplyModel   = "morph-v3-large"
	defaultApplyBaseURL = "https://api.morphllm.com/v1"
)

// Settings configures ApplyClient.
type Settings struct {
	Model   string
	APIKey  string
	BaseURL string
}

// ApplyClient talks to an OpenAI-compatible fast-apply endpoint which takes
// instruction, original code and update in one user message.
type ApplyClient struct {
	Model string
	Opts  []option.RequestOption
}

func NewApplyClient(cfg Settings) (*ApplyClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("patch api key missing; provide patch.api_key")
	}
	model := cfg.Model
	if model == "" {
		model = defaultApplyModel
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultApplyBaseURL
	}
	return &ApplyClient{
		Model: model,
		Opts: []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(base),
			option.WithMaxRetries(0),
		},
	}, nil
}

func (c *ApplyClient) Apply(ctx context.Context, req PatchRequest) (string, error) {
	client := openai.NewClient(c.Opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(applyMessage(req))},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("apply: empty choices")
	}
	out := resp.Choices[0].Message.Content
	if strings.TrimSpace(out) == "" {
		return "", errors.New("apply: empty merged output")
	}
	return out, nil
}

func applyMessage(req PatchRequest) string {
	var sb strings.Builder
	sb.WriteString("<instruction>")
	sb.WriteString(req.Instruction)
	sb.WriteString("</instruction>\n<code>")
	sb.WriteString(req.Before)
	sb.WriteString("</code>\n<update>")
	sb.WriteString(req.Candidate)
	sb.WriteString("</update>")
	return sb.String()
}
