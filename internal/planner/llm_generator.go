package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"

	"power-text2sql-backend/config"
	"power-text2sql-backend/internal/model"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestBody struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Index        int         `json:"index"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// sqlKeywordPattern rejects model output that tries to smuggle SQL through
// the plan channel. Plans carry identifiers and values, never statements.
var sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|alter|union|exec)\b\s`)

type httpGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	httpClient *http.Client
}

// NewHTTPGenerator builds a generator against an OpenAI-compatible
// chat-completions endpoint.
func NewHTTPGenerator(cfg config.LLMConfig) PlanGenerator {
	return &httpGenerator{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *httpGenerator) Generate(ctx context.Context, pc PromptContext) (model.QueryPlan, error) {
	log.Info().Str("question", pc.Question).Bool("repair", pc.PriorPlan != nil).Msg("LLM Generator: Requesting query plan")

	requestBody := chatRequestBody{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: BuildPrompt(pc)}},
		Temperature: 0,
	}
	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return model.QueryPlan{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var respBodyBytes []byte
	operation := func() error {
		var callErr error
		respBodyBytes, callErr = g.callChatAPI(ctx, bodyBytes)
		return callErr
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return model.QueryPlan{}, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBodyBytes, &chatResp); err != nil {
		log.Error().Err(err).Bytes("response_body", respBodyBytes).Msg("Failed to unmarshal chat completion response")
		return model.QueryPlan{}, fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return model.QueryPlan{}, errors.New("received empty completion response")
	}

	return DecodePlanOutput(chatResp.Choices[0].Message.Content)
}

func (g *httpGenerator) callChatAPI(ctx context.Context, bodyBytes []byte) ([]byte, error) {
	url := g.baseURL + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Chat completion request failed")
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status_code", resp.StatusCode).Bytes("response_body", respBodyBytes).Msg("Chat completion returned non-OK status")
		err := fmt.Errorf("completion API error: status code %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return respBodyBytes, nil
}

// DecodePlanOutput extracts the JSON plan from raw model text and decodes it
// strictly. Unknown fields and embedded SQL are both rejected.
func DecodePlanOutput(raw string) (model.QueryPlan, error) {
	cleaned := cleanJSONOutput(raw)
	if cleaned == "" {
		log.Error().Str("raw_text", raw).Msg("Failed to extract valid JSON from model output")
		return model.QueryPlan{}, errors.New("model did not return valid JSON")
	}
	if sqlKeywordPattern.MatchString(cleaned) {
		log.Error().Str("cleaned_json", cleaned).Msg("Model output contains SQL keywords")
		return model.QueryPlan{}, errors.New("model output contains SQL, expected a query plan")
	}

	var plan model.QueryPlan
	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&plan); err != nil {
		log.Error().Err(err).Str("cleaned_json", cleaned).Msg("Failed to unmarshal query plan from model output")
		return model.QueryPlan{}, fmt.Errorf("failed to parse query plan: %w", err)
	}
	return plan, nil
}

func cleanJSONOutput(raw string) string {
	startIndex := strings.Index(raw, "{")
	if startIndex == -1 {
		return ""
	}
	endIndex := strings.LastIndex(raw, "}")
	if endIndex == -1 || endIndex < startIndex {
		return ""
	}

	potentialJSON := raw[startIndex : endIndex+1]

	var js map[string]interface{}
	if json.Unmarshal([]byte(potentialJSON), &js) == nil {
		return potentialJSON
	}

	log.Warn().Str("potential_json", potentialJSON).Msg("Could not validate potential JSON extracted from model output")
	return ""
}
