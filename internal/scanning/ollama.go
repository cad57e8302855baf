package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zombor/pantry-tracker/internal/extract"
)

// Ollama scans receipts with a local Ollama vision model such as llava
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama scanner
func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llava"
	}
	return &Ollama{
		baseURL: baseURL,
		model:   model,
		// vision models on local hardware are slow
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// ScanReceipt posts the receipt to /api/chat with the image attached to
// the user message
func (o *Ollama) ScanReceipt(ctx context.Context, data []byte, contentType string) (*extract.StructuredReceipt, error) {
	img, err := ToPNG(data, contentType)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model:  o.model,
		Format: "json",
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You read grocery receipts and transcribe their product lines accurately.",
			},
			{
				Role:    "user",
				Content: lineItemsPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(img)},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(msg))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return Parse(out.Message.Content)
}

// Close is a no-op; the HTTP client holds no resources
func (o *Ollama) Close() error {
	return nil
}
