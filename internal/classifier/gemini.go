package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the Gemini model used when none is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the part of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiModel classifies transactions with a Gemini model. It only accepts
// the Records convention since the prompt needs named fields.
type GeminiModel struct {
	models    contentGenerator
	modelName string
	labels    []string
}

// NewGeminiModel creates a Gemini-backed model restricted to labels.
// Credentials come from the environment, as with genai.NewClient.
func NewGeminiModel(ctx context.Context, modelName string, labels []string) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiModel: create genai client: %w", err)
	}
	return newGeminiModel(client.Models, modelName, labels), nil
}

func newGeminiModel(models contentGenerator, modelName string, labels []string) *GeminiModel {
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return &GeminiModel{models: models, modelName: modelName, labels: labels}
}

// Predict implements Model.
func (g *GeminiModel) Predict(ctx context.Context, input any) ([]any, error) {
	records, ok := input.(Records)
	if !ok {
		return nil, fmt.Errorf("GeminiModel: %w: expects records input, got %T", ErrUnsupportedInput, input)
	}
	if len(records) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("GeminiModel: marshal records: %w", err)
	}

	prompt := "You are a spending categorizer for personal bank transactions.\n\n" +
		"Task:\n" +
		"- Assign exactly one category to each transaction in the JSON array below.\n" +
		"- Allowed categories: " + strings.Join(g.labels, ", ") + ".\n" +
		"- Use the \"text\" field first, then \"payment_method\" and \"amount\".\n\n" +
		"Return ONLY a raw JSON array of category strings, one per transaction, in input order.\n" +
		"Do NOT wrap the response in code fences.\n\n" +
		"Transactions:\n" + string(payload)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.modelName, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GeminiModel: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("GeminiModel: empty response from model")
	}

	var labels []string
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &labels); err != nil {
		return nil, fmt.Errorf("GeminiModel: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}
	if len(labels) != len(records) {
		return nil, fmt.Errorf("GeminiModel: got %d labels for %d records", len(labels), len(records))
	}

	out := make([]any, len(labels))
	for i, l := range labels {
		out[i] = strings.TrimSpace(l)
	}
	return out, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = strings.TrimSpace(s[idx+1:])
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
