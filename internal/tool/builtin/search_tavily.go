package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vibecli/vibe-core/internal/tool"
	"github.com/vibecli/vibe-core/internal/util"
)

const (
	tavilyAPIURL      = "https://api.tavily.com/search"
	tavilyMaxResults  = 5
	tavilyHTTPTimeout = 15 * time.Second
	tavilyMaxBody     = 5 << 20 // 5MB success response limit
	tavilyErrMaxBody  = 1 << 20 // 1MB error response limit
	tavilyErrBodyShow = 200     // max chars of error body shown to caller
)

// TavilySearchTool implements web_search via the Tavily API.
type TavilySearchTool struct {
	apiKey   string
	baseURL  string // injectable for tests; defaults to tavilyAPIURL
	client   *http.Client
	enforcer *tool.Enforcer
}

// String returns a log-safe representation with the API key omitted.
func (t *TavilySearchTool) String() string {
	return fmt.Sprintf("TavilySearchTool{baseURL: %q}", t.baseURL)
}

func NewTavilySearchTool(apiKey string, enforcer *tool.Enforcer) *TavilySearchTool {
	return &TavilySearchTool{
		apiKey:  apiKey,
		baseURL: tavilyAPIURL,
		// No client-level Timeout: request lifetime is controlled exclusively
		// via context.WithTimeout in Execute.
		client:   &http.Client{},
		enforcer: enforcer,
	}
}

func (t *TavilySearchTool) Name() string { return "web_search" }
func (t *TavilySearchTool) Description() string {
	return "Search the web for information: news, documentation, fact lookups."
}

func (t *TavilySearchTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "query", Type: "string", Description: "Search query", Required: true},
	)
}

func (t *TavilySearchTool) Init(_ context.Context) error {
	if t.apiKey == "" {
		return fmt.Errorf("tavily API key not configured")
	}
	return nil
}

func (t *TavilySearchTool) Close() error { return nil }

func (t *TavilySearchTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: tavilyHTTPTimeout, MaxOutputSize: tavilyMaxBody}
}

func (t *TavilySearchTool) Validate(args tool.ToolArgs) error {
	_, err := parseSearchQuery(args)
	return err
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// String masks the API key, preventing accidental exposure in log output.
func (r tavilyRequest) String() string {
	return fmt.Sprintf("tavilyRequest{Query: %q, MaxResults: %d}", r.Query, r.MaxResults)
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
	Answer  string         `json:"answer,omitempty"`
}

type tavilyResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (t *TavilySearchTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	if t.enforcer != nil {
		if err := t.enforcer.WaitNetwork(ctx); err != nil {
			return tool.ToolOutput{Success: false, Stderr: err.Error()}, err
		}
	}

	query, err := parseSearchQuery(args)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, nil
	}

	reqBody := tavilyRequest{APIKey: t.apiKey, Query: query, MaxResults: tavilyMaxResults}
	// SECURITY: bodyBytes contains the plaintext API key; never log it.
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("build request: %v", err)}, nil
	}

	httpCtx, cancel := context.WithTimeout(ctx, tavilyHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(httpCtx, http.MethodPost, t.baseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("create request: %v", err)}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("search request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, tavilyErrMaxBody))
		bodyStr := util.TruncateRunes(strings.TrimSpace(string(body)), tavilyErrBodyShow)
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("tavily API error (HTTP %d): %s", resp.StatusCode, bodyStr)}, nil
	}

	var tavilyResp tavilyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, tavilyMaxBody)).Decode(&tavilyResp); err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("parse response: %v", err)}, nil
	}

	var sb strings.Builder
	if tavilyResp.Answer != "" {
		sb.WriteString(fmt.Sprintf("summary: %s\n\n", tavilyResp.Answer))
	}
	results := make([]searchResult, len(tavilyResp.Results))
	for i, r := range tavilyResp.Results {
		results[i] = searchResult{Title: r.Title, URL: r.URL, Description: r.Content}
	}
	sb.WriteString(formatSearchResults(results))

	return tool.ToolOutput{
		Success:       true,
		Stdout:        sb.String(),
		ResourcesUsed: tool.ResourceUsage{NetworkCalls: 1},
	}, nil
}
