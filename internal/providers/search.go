package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"smartdesk/internal/config"
	"smartdesk/internal/core"
	"smartdesk/internal/logger"
	"smartdesk/internal/secrets"
)

// Search wraps the Serper.dev search API. Each organic result becomes one
// claim with its source link; a knowledge-graph entry, when present, leads.
type Search struct {
	cfg    config.SearchConfig
	apiKey string
	client *http.Client
	log    zerolog.Logger
}

func NewSearch(cfg config.SearchConfig, sec *secrets.Store) (*Search, error) {
	apiKey, err := sec.MustGet("SERPER_API_KEY")
	if err != nil {
		return nil, err
	}
	return &Search{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{},
		log:    logger.With("search"),
	}, nil
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type serperResponse struct {
	Organic        []serperResult `json:"organic"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Website     string `json:"website"`
	} `json:"knowledgeGraph"`
}

// Query runs the search and maps the response into claim/source pairs.
func (s *Search) Query(ctx context.Context, query string) (*core.SearchResult, error) {
	num := s.cfg.MaxResults
	if num <= 0 {
		num = 8
	}
	body, err := sonic.Marshal(serperRequest{Q: query, Num: num})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}

	var parsed serperResponse
	err = withRetry(ctx, s.cfg.MaxRetries, func(ctx context.Context) error {
		callCtx, cancel := callTimeout(ctx, s.cfg.Timeout())
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("X-API-KEY", s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("search API returned status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return sonic.Unmarshal(data, &parsed)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: web search failed: %v", core.ErrProviderUnavailable, err)
	}

	result := &core.SearchResult{Query: query}
	if kg := parsed.KnowledgeGraph; kg != nil && kg.Description != "" {
		result.Claims = append(result.Claims, core.Claim{
			Text:        kg.Description,
			SourceTitle: kg.Title,
			SourceURL:   kg.Website,
		})
	}
	for _, r := range parsed.Organic {
		if r.Snippet == "" || r.Link == "" {
			continue
		}
		result.Claims = append(result.Claims, core.Claim{
			Text:        r.Snippet,
			SourceTitle: r.Title,
			SourceURL:   r.Link,
		})
		if len(result.Claims) >= num {
			break
		}
	}
	return result, nil
}
