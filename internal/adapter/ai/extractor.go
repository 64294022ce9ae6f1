// Package ai implements the LLM tag extractor on an OpenAI-compatible
// chat/completions endpoint with structured output.
package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/adapter/observability"
	"github.com/fairyhunter13/jobfeed/internal/config"
	"github.com/fairyhunter13/jobfeed/internal/domain"
	"github.com/fairyhunter13/jobfeed/pkg/textx"
)

const (
	aiProvider = "openai"
	opExtract  = "extract_tags"

	maxTagsPerListing = 5

	// promptTokenBudget caps the full chat prompt so a batch always fits
	// the model context window with room for the structured response.
	promptTokenBudget = 12000
	// minDescriptionTokens keeps truncation from erasing a description
	// entirely when a batch carries a few very long postings.
	minDescriptionTokens = 80

	maxErrorBodyBytes = 512
)

const extractSystemPrompt = `You label job listings with technical skill tags.
Rules:
- Return at most 5 tags per listing, lowercase.
- Tags must be technical skills only: languages, frameworks, databases, tools, platforms.
- If a listing has no technical content, return exactly ["non-tech"].
- Return one result for every input link, using the link exactly as given.`

// Client extracts technical-skill tags for batches of tagless listings.
// It implements domain.TagExtractor.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	policy  httpclient.Policy
	counter *tokencount.Counter
}

// New returns a Client honoring the configured read timeout. A 20-listing
// batch regularly takes longer than the default HTTP timeout to complete.
func New(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.OpenAIReadTimeout},
		policy:  httpclient.Policy{MaxAttempts: 4},
		counter: tokencount.NewCounter(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// extractionSchema builds the strict response schema for one batch. The link
// enum pins every result to an input listing; exactly one result per link.
func extractionSchema(links []string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"results": map[string]any{
				"type":     "array",
				"minItems": len(links),
				"maxItems": len(links),
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"link": map[string]any{
							"type": "string",
							"enum": links,
						},
						"tags": map[string]any{
							"type":     "array",
							"items":    map[string]any{"type": "string"},
							"maxItems": maxTagsPerListing,
						},
					},
					"required":             []string{"link", "tags"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"results"},
		"additionalProperties": false,
	}
}

// ExtractTags sends one structured-output completion for the batch and maps
// the results back onto the input links. Entries for unknown links are
// dropped; listings the model skipped stay tagless and are retried on the
// next backfill pass.
func (e *Client) ExtractTags(ctx domain.Context, batch []domain.TagRequest) (map[string][]string, error) {
	if len(batch) == 0 {
		return map[string][]string{}, nil
	}
	if e.cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("op=ai.extract_tags: %w: OPENAI_API_KEY missing", domain.ErrConfiguration)
	}

	links := make([]string, len(batch))
	for i, t := range batch {
		links[i] = t.Link
	}
	prompt, err := e.userPrompt(batch)
	if err != nil {
		return nil, fmt.Errorf("op=ai.extract_tags: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:       e.cfg.OpenAIModel,
		Temperature: 0.2,
		Messages: []chatMessage{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "tag_extraction",
				Strict: true,
				Schema: extractionSchema(links),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("op=ai.extract_tags: %w", err)
	}

	slog.Info("extracting tags",
		slog.Int("listings", len(batch)),
		slog.String("model", e.cfg.OpenAIModel))

	endpoint := e.cfg.OpenAIBaseURL + "/chat/completions"
	var out chatResponse
	op := func() error {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+e.cfg.OpenAIAPIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.hc.Do(req)
		observability.AIRequestsTotal.WithLabelValues(aiProvider, opExtract).Inc()
		observability.AIRequestDuration.WithLabelValues(aiProvider, opExtract).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &httpclient.StatusError{
				StatusCode: resp.StatusCode,
				URL:        endpoint,
				Body:       snippet(data, maxErrorBodyBytes),
			}
			if serr.Retryable() {
				slog.Warn("llm request failed",
					slog.Int("status", resp.StatusCode),
					slog.String("body", serr.Body))
			} else {
				slog.Error("llm request rejected",
					slog.Int("status", resp.StatusCode),
					slog.String("body", serr.Body))
			}
			return serr
		}
		return json.Unmarshal(data, &out)
	}
	if err := httpclient.Retry(ctx, e.policy, op); err != nil {
		return nil, fmt.Errorf("op=ai.extract_tags: %w", err)
	}

	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("op=ai.extract_tags: empty choices")
	}
	msg := out.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("op=ai.extract_tags: model refused: %s", msg.Refusal)
	}
	e.recordTokens(out, prompt, msg.Content)

	var parsed struct {
		Results []struct {
			Link string   `json:"link"`
			Tags []string `json:"tags"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(msg.Content), &parsed); err != nil {
		return nil, fmt.Errorf("op=ai.extract_tags: decode model output: %w", err)
	}

	byLower := make(map[string]string, len(batch))
	for _, t := range batch {
		byLower[strings.ToLower(t.Link)] = t.Link
	}
	tags := make(map[string][]string, len(parsed.Results))
	for _, r := range parsed.Results {
		link, ok := byLower[strings.ToLower(r.Link)]
		if !ok {
			slog.Warn("ignoring tags for unknown link", slog.String("link", r.Link))
			continue
		}
		tags[link] = cleanTags(r.Tags)
	}
	if len(tags) < len(batch) {
		slog.Warn("model skipped listings",
			slog.Int("expected", len(batch)),
			slog.Int("got", len(tags)))
	}
	return tags, nil
}

// userPrompt renders the batch, truncating descriptions so the whole prompt
// stays inside the token budget. The budget splits evenly across listings
// after accounting for the fixed framing.
func (e *Client) userPrompt(batch []domain.TagRequest) (string, error) {
	const header = "Extract tags for the following job listings.\n"

	var meta strings.Builder
	meta.WriteString(header)
	for _, t := range batch {
		writeListing(&meta, t.Link, t.Title, "")
	}
	used, err := e.counter.CountChatTokens(extractSystemPrompt, meta.String(), e.cfg.OpenAIModel)
	if err != nil {
		return "", err
	}
	perDescription := (promptTokenBudget - used) / len(batch)
	if perDescription < minDescriptionTokens {
		perDescription = minDescriptionTokens
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, t := range batch {
		desc, err := e.counter.Truncate(flatten(t.Description), e.cfg.OpenAIModel, perDescription)
		if err != nil {
			return "", err
		}
		writeListing(&sb, t.Link, t.Title, desc)
	}
	return sb.String(), nil
}

func writeListing(sb *strings.Builder, link, title, description string) {
	sb.WriteString("\nLink: ")
	sb.WriteString(link)
	sb.WriteString("\nTitle: ")
	sb.WriteString(title)
	sb.WriteString("\nDescription: ")
	sb.WriteString(description)
	sb.WriteString("\n")
}

// flatten collapses whitespace runs; scraped descriptions arrive with heavy
// HTML-derived padding that wastes prompt tokens.
func flatten(s string) string {
	return textx.CollapseSpaces(s)
}

// cleanTags lowercases, trims and dedupes, capped at maxTagsPerListing. An
// empty result would leave the listing eligible for every future backfill
// pass, so it degrades to the non-tech tag.
func cleanTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
		if len(tags) == maxTagsPerListing {
			break
		}
	}
	if len(tags) == 0 {
		return []string{domain.NonTechTag}
	}
	return tags
}

// recordTokens prefers the provider-reported usage and falls back to local
// tiktoken counts when the response omits it.
func (e *Client) recordTokens(resp chatResponse, prompt, completion string) {
	in := resp.Usage.PromptTokens
	out := resp.Usage.CompletionTokens
	if in == 0 {
		if n, err := e.counter.CountChatTokens(extractSystemPrompt, prompt, e.cfg.OpenAIModel); err == nil {
			in = n
		}
	}
	if out == 0 {
		if n, err := e.counter.CountTokens(completion, e.cfg.OpenAIModel); err == nil {
			out = n
		}
	}
	observability.AITokensTotal.WithLabelValues("input").Add(float64(in))
	observability.AITokensTotal.WithLabelValues("output").Add(float64(out))
}

func snippet(data []byte, n int) string {
	s := string(data)
	if len(s) > n {
		s = s[:n]
	}
	return strings.ToValidUTF8(s, "")
}
