package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/quizbuzz/quizbuzz/internal/game"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	requestTimeout = 60 * time.Second
)

// LLMGenerator produces board content from an OpenAI-compatible chat
// completion endpoint. Category titles are requested first, then the clues
// for each category are fetched concurrently.
type LLMGenerator struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  *log.Logger
}

// NewLLMGenerator creates a generator against an OpenAI-compatible API.
// Empty baseURL and model fall back to the OpenAI defaults.
func NewLLMGenerator(logger *log.Logger, baseURL, apiKey, model string) *LLMGenerator {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &LLMGenerator{
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		logger:  logger.WithPrefix("generator"),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type categoriesPayload struct {
	Categories []string `json:"categories"`
}

type cluesPayload struct {
	Clues []struct {
		Clue   string `json:"clue"`
		Answer string `json:"answer"`
	} `json:"clues"`
}

// GenerateBoard implements game.Generator
func (lg *LLMGenerator) GenerateBoard(ctx context.Context, numCategories, numClues int) (*game.Board, error) {
	if numCategories <= 0 || numClues <= 0 {
		return nil, fmt.Errorf("board dimensions must be positive, got %dx%d", numCategories, numClues)
	}

	titles, err := lg.generateCategories(ctx, numCategories)
	if err != nil {
		return nil, fmt.Errorf("category generation failed: %w", err)
	}

	board := &game.Board{Categories: make([]game.Category, len(titles))}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, title := range titles {
		eg.Go(func() error {
			clues, err := lg.generateClues(egCtx, title, numClues)
			if err != nil {
				return fmt.Errorf("clue generation for %q failed: %w", title, err)
			}
			board.Categories[i] = game.Category{Title: title, Clues: clues}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	lg.logger.Info("Generated board", "categories", numCategories, "clues", numClues)
	return board, nil
}

func (lg *LLMGenerator) generateCategories(ctx context.Context, num int) ([]string, error) {
	prompt := fmt.Sprintf(
		"Generate %d distinct trivia categories suitable for a quiz-show board. "+
			"Respond with JSON only, in the form {\"categories\": [\"title\", ...]}.", num)

	var payload categoriesPayload
	if err := lg.complete(ctx, prompt, &payload); err != nil {
		return nil, err
	}
	if len(payload.Categories) < num {
		return nil, fmt.Errorf("model returned %d categories, wanted %d", len(payload.Categories), num)
	}
	return payload.Categories[:num], nil
}

func (lg *LLMGenerator) generateClues(ctx context.Context, category string, num int) ([]game.Clue, error) {
	prompt := fmt.Sprintf(
		"Generate %d quiz-show clues for the category %q, ordered easiest to hardest. "+
			"Each clue is a statement whose answer is a short phrase. "+
			"Respond with JSON only, in the form {\"clues\": [{\"clue\": \"...\", \"answer\": \"...\"}, ...]}.",
		num, category)

	var payload cluesPayload
	if err := lg.complete(ctx, prompt, &payload); err != nil {
		return nil, err
	}
	if len(payload.Clues) < num {
		return nil, fmt.Errorf("model returned %d clues, wanted %d", len(payload.Clues), num)
	}

	clues := make([]game.Clue, num)
	for i := 0; i < num; i++ {
		clues[i] = game.Clue{
			Value:  cellValue(i),
			Text:   payload.Clues[i].Clue,
			Answer: payload.Clues[i].Answer,
		}
	}
	return clues, nil
}

// complete performs one chat completion round-trip and unmarshals the
// message content into out.
func (lg *LLMGenerator) complete(ctx context.Context, prompt string, out interface{}) error {
	reqBody, err := json.Marshal(chatRequest{
		Model: lg.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You write trivia content. Respond with valid JSON only."},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		lg.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+lg.apiKey)

	resp, err := lg.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return fmt.Errorf("decoding completion response: %w", err)
	}
	if chat.Error != nil {
		return fmt.Errorf("completion API error: %s", chat.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("completion API returned status %d", resp.StatusCode)
	}
	if len(chat.Choices) == 0 {
		return fmt.Errorf("completion response had no choices")
	}

	content := chat.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("model did not return the requested JSON shape: %w", err)
	}
	return nil
}
