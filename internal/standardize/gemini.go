package standardize

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider generates standardizations with Google Gemini in JSON mode
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetMaxOutputTokens(1024)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = entrySchema

	return &GeminiProvider{client: client, model: model}, nil
}

var entrySchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"originalName":     {Type: genai.TypeString},
			"standardizedName": {Type: genai.TypeString},
			"shelfLifeDays":    {Type: genai.TypeInteger},
			"category":         {Type: genai.TypeString},
		},
		Required: []string{"originalName", "standardizedName", "shelfLifeDays", "category"},
	},
}

// Name identifies the provider in logs
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// Generate sends the prompt and joins the text parts of the first candidate
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}

// Close closes the Gemini client
func (g *GeminiProvider) Close() error {
	return g.client.Close()
}
