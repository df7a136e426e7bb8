package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"threat-radar/config"
)

// Fester Timeout pro Completion-Aufruf; hängende Aufrufe werden
// ausschließlich hierüber begrenzt, das Gateway wiederholt nichts.
var httpClient = &http.Client{Timeout: 90 * time.Second}

// TransportError zeigt an, dass der entfernte Completion-Aufruf
// fehlgeschlagen ist oder in den Timeout gelaufen ist.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion request failed: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("completion request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError zeigt an, dass die Modellantwort nach dem Entfernen von
// Code-Fences kein gültiges JSON war.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("model response is not valid JSON: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Completer ist die Schnittstelle, über die Services das Sprachmodell
// ansprechen. Sie existiert, damit Klassifikation und Assessment mit
// einem Ersatz-Gateway testbar bleiben.
type Completer interface {
	Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error)
	CompleteJSON(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64, out any) error
}

// Client spricht die OpenRouter Chat-Completions-API an.
type Client struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewClient erstellt einen neuen OpenRouter-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{Config: cfg, Logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sendet einen Completion-Request und gibt den Antworttext zurück.
func (c *Client) Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) (string, error) {
	var messages []chatMessage
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(completionRequest{
		Model:       c.Config.DefaultModel,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.Config.OpenRouterBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.OpenRouterAPIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://threat-radar.local")
	req.Header.Set("X-Title", "Biosecurity Threat Forecaster")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.Logger.Error("Completion-API hat nicht-200-Status zurückgegeben",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)))
		return "", &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &TransportError{Err: err}
	}
	if len(cr.Choices) == 0 {
		return "", &TransportError{Err: fmt.Errorf("response contains no choices")}
	}
	return cr.Choices[0].Message.Content, nil
}

// CompleteJSON sendet einen Completion-Request, entfernt eventuelle
// Markdown-Fences und parst das Ergebnis als JSON in out.
func (c *Client) CompleteJSON(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64, out any) error {
	jsonSystem := systemPrompt + "\n\nRespond ONLY with valid JSON. No markdown, no explanation."

	text, err := c.Complete(ctx, prompt, jsonSystem, maxTokens, temperature)
	if err != nil {
		return err
	}

	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &DecodeError{Raw: cleaned, Err: err}
	}
	return nil
}

// stripFences entfernt führende/abschließende ```json bzw. ``` Marker.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	} else if strings.HasPrefix(text, "```") {
		text = text[len("```"):]
	}
	if strings.HasSuffix(text, "```") {
		text = text[:len(text)-len("```")]
	}
	return strings.TrimSpace(text)
}
