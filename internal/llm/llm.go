package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/brightpath/assess/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// Judgment holds the judgment service's assessment of an open-ended answer.
type Judgment struct {
	Score             float64 `json:"score"`
	IsCorrect         bool    `json:"is_correct"`
	FeedbackPrimary   string  `json:"feedback_primary"`
	FeedbackSecondary string  `json:"feedback_secondary"`
}

// Client wraps an OpenAI-compatible API client. It serves both as the
// judgment service for open-ended scoring and as the narrative generator
// for phase-2 reports.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// Evaluate sends an open-ended answer with its question context and rubric
// for judgment. The verdict carries a score on the engine's 0-1 scale.
func (c *Client) Evaluate(ctx context.Context, q model.Question, studentText string) (*Judgment, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildJudgePrompt(q)},
			{Role: openai.ChatMessageRoleUser, Content: sanitizeAnswer(studentText)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("judgment API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judgment service returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("judgment response", "raw", raw)

	var j Judgment
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("parse judgment response: %w (raw: %s)", err, raw)
	}
	return &j, nil
}

// Narrate asks for a short narrative commentary on a statistics summary.
func (c *Client) Narrate(ctx context.Context, summary string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: narratorPrompt},
			{Role: openai.ChatMessageRoleUser, Content: summary},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("narrative API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("narrative service returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

const narratorPrompt = "You are a supportive tutor summarizing a student's adaptive assessment results for the student and their parents. " +
	"Write 2-4 sentences of plain, encouraging prose based on the statistics you are given. " +
	"Mention the overall level, one strength if any, and one area to work on if any. " +
	"Do not invent numbers that are not in the statistics."

func buildJudgePrompt(q model.Question) string {
	var sb strings.Builder
	sb.WriteString("You are grading a student's answer to the following question:\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n\n")
	if q.TextRu != "" {
		sb.WriteString("QUESTION (RU): " + q.TextRu + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("SUBJECT: %s, GRADE LEVEL: %d, TOPIC: %s\n\n", q.Subject, q.GradeLevel, q.Topic))
	if q.Rubric != "" {
		sb.WriteString("GRADING RUBRIC:\n" + q.Rubric + "\n\n")
	}

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Evaluate the answer for correctness, completeness, and understanding.\n")
	sb.WriteString("- score is a number from 0 to 1; is_correct is true when the answer deserves at least partial credit (score 0.5 or above).\n")
	sb.WriteString("- feedback_primary is one or two sentences in the question's primary language; feedback_secondary is the same feedback in Russian, or an empty string if the question has no Russian text.\n")
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"score": <0 to 1>, "is_correct": <true/false>, "feedback_primary": "<feedback>", "feedback_secondary": "<feedback or empty>"}`)
	sb.WriteString("\n")
	return sb.String()
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > 10000 {
		runes := []rune(answer)
		runes = runes[:10000]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
