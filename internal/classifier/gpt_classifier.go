package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/models"
)

type GPTResponse struct {
	Summary string `json:"summary"`
	Intent  string `json:"intent"`
}

// GPTClassifier asks a chat model for a better summary and intent. Everything
// that gates behaviour (tags, danger words, status, replies) stays rule based.
type GPTClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	rules       *RuleClassifier
	logger      *zap.Logger
}

func NewGPTClassifier(apiKey, baseURL, model string, maxTokens int, temperature float64, rules *RuleClassifier, logger *zap.Logger) *GPTClassifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &GPTClassifier{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		rules:       rules,
		logger:      logger,
	}
}

func (c *GPTClassifier) Analyze(ctx context.Context, in Input) Analysis {
	analysis := c.rules.Analyze(ctx, in)
	// A dangerous message keeps the fixed warning text so staff cannot miss it.
	if analysis.HasDangerWord {
		return analysis
	}

	channel := "LINEメッセージ"
	if in.Channel == models.ChannelGoogle {
		channel = "Googleレビュー"
		if in.Rating > 0 {
			channel = fmt.Sprintf("Googleレビュー(★%d)", in.Rating)
		}
	}

	prompt := fmt.Sprintf(`You are assisting a small Japanese business with its customer inbox.
Read the following %s and answer in Japanese.

Return the response as a JSON object with this structure:
{
    "summary": "one sentence summary for the store staff",
    "intent": "short intent label, e.g. 予約希望"
}

Content: %s`, channel, in.Text)

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
		},
	)
	if err != nil {
		c.logger.Warn("Failed to get GPT response, using rule analysis", zap.Error(err))
		return analysis
	}
	if len(resp.Choices) == 0 {
		c.logger.Warn("GPT response has no choices, using rule analysis")
		return analysis
	}

	var gptResponse GPTResponse
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	response = strings.TrimSuffix(strings.TrimPrefix(response, "```json"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &gptResponse); err != nil {
		c.logger.Warn("Failed to parse GPT response",
			zap.Error(err),
			zap.String("response", response))
		return analysis
	}

	if s := strings.TrimSpace(gptResponse.Summary); s != "" {
		analysis.Summary = s
	}
	if s := strings.TrimSpace(gptResponse.Intent); s != "" {
		analysis.Intent = s
	}
	return analysis
}
