package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ecomstack/shelfsort/internal/common"
	"github.com/ecomstack/shelfsort/internal/model"
)

// HierarchyReader provides the current hierarchy snapshot.
type HierarchyReader interface {
	GetNodesByLevel(ctx context.Context, level int) ([]model.CategoryNode, error)
}

// SuggestionSink records new-collection evidence as it arrives.
type SuggestionSink interface {
	RecordSuggestion(ctx context.Context, name, parentCollection, productID string) error
}

// Classifier asks an external model to assign a product to collections
// from the current hierarchy snapshot.
type Classifier struct {
	client      Client
	hierarchy   HierarchyReader
	suggestions SuggestionSink
	rateLimiter *rateLimiter
	logger      *slog.Logger
	cfg         Config
}

// Config holds configuration for the LLM classifier.
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	MaxRetries        int
	BaseDelay         time.Duration
	RequestTimeout    time.Duration
	MaxCandidates     int
	MaxDescriptionLen int
	RateLimit         int
	Temperature       float64
	MaxTokens         int
}

// NewClassifier creates a new LLM-based classifier.
func NewClassifier(cfg Config, hierarchy HierarchyReader, suggestions SuggestionSink, logger *slog.Logger) (*Classifier, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		client, err = newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return NewClassifierWithClient(cfg, client, hierarchy, suggestions, logger), nil
}

// NewClassifierWithClient wires a pre-built provider client; used by tests.
func NewClassifierWithClient(cfg Config, client Client, hierarchy HierarchyReader, suggestions SuggestionSink, logger *slog.Logger) *Classifier {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 50
	}
	if cfg.MaxDescriptionLen <= 0 {
		cfg.MaxDescriptionLen = 2000
	}

	return &Classifier{
		client:      client,
		hierarchy:   hierarchy,
		suggestions: suggestions,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		logger:      logger,
		cfg:         cfg,
	}
}

// Classify asks the model to assign the product to collections from the
// deepest populated hierarchy level. Rate-limit and timeout signals are
// retried with a bounded attempt count; a malformed model response
// degrades to an empty result rather than an error.
func (c *Classifier) Classify(ctx context.Context, title, description string) (model.ClassificationResult, error) {
	if strings.TrimSpace(title) == "" {
		return model.ClassificationResult{}, common.ErrEmptyTitle
	}

	candidates, candidateLevel, err := c.loadCandidates(ctx)
	if err != nil {
		return model.ClassificationResult{}, err
	}

	prompt, err := c.buildPrompt(title, c.truncateDescription(description), candidates)
	if err != nil {
		return model.ClassificationResult{}, err
	}

	var resp ClassifyResponse

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.rateLimiter.wait(ctx); err != nil {
			return model.ClassificationResult{}, fmt.Errorf("rate limit error: %w", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		resp, err = c.client.Classify(reqCtx, prompt)
		cancel()

		if err == nil {
			break
		}

		switch {
		case errors.Is(err, common.ErrMalformedResponse):
			c.logger.Warn("model returned unparseable output, degrading to empty result",
				"title", title,
				"attempt", attempt,
				"error", err)
			return model.ClassificationResult{}, nil

		case errors.Is(err, common.ErrRateLimited):
			if attempt == c.cfg.MaxRetries {
				return model.ClassificationResult{}, fmt.Errorf("%w after %d attempts: %v", common.ErrRateLimitExceeded, attempt, err)
			}
			// Linear backoff: each rate-limited attempt waits a little longer.
			if err := c.sleep(ctx, c.cfg.BaseDelay*time.Duration(attempt)); err != nil {
				return model.ClassificationResult{}, err
			}
			c.logger.Warn("model rate limited, retrying",
				"title", title,
				"attempt", attempt)

		case isTimeout(err):
			if attempt == c.cfg.MaxRetries {
				return model.ClassificationResult{}, fmt.Errorf("%w after %d attempts: %v", common.ErrTimeoutExceeded, attempt, err)
			}
			if err := c.sleep(ctx, c.cfg.BaseDelay); err != nil {
				return model.ClassificationResult{}, err
			}
			c.logger.Warn("model request timed out, retrying",
				"title", title,
				"attempt", attempt)

		default:
			return model.ClassificationResult{}, fmt.Errorf("classification request failed: %w", err)
		}
	}

	result := c.buildResult(resp)

	// Merge any suggestion into the ledger straight away; the owning
	// product id is attached later during batch processing.
	if result.Suggestion != nil {
		if err := c.suggestions.RecordSuggestion(ctx, result.Suggestion.SuggestedName, result.Suggestion.ParentCollection, ""); err != nil {
			c.logger.Error("failed to record collection suggestion",
				"name", result.Suggestion.SuggestedName,
				"error", err)
		}
	}

	c.logger.Info("product classified",
		"title", title,
		"candidate_level", candidateLevel,
		"assigned", len(result.Assigned),
		"suggested", result.Suggestion != nil)

	return result, nil
}

// loadCandidates returns the nodes of the deepest populated hierarchy
// level, capped to keep the prompt bounded.
func (c *Classifier) loadCandidates(ctx context.Context) ([]model.CategoryNode, int, error) {
	for level := model.MaxHierarchyDepth; level >= 1; level-- {
		nodes, err := c.hierarchy.GetNodesByLevel(ctx, level)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load hierarchy level %d: %w", level, err)
		}
		if len(nodes) > 0 {
			if len(nodes) > c.cfg.MaxCandidates {
				nodes = nodes[:c.cfg.MaxCandidates]
			}
			return nodes, level, nil
		}
	}

	return nil, 0, common.ErrNoHierarchy
}

func (c *Classifier) truncateDescription(description string) string {
	runes := []rune(description)
	if len(runes) <= c.cfg.MaxDescriptionLen {
		return description
	}
	return string(runes[:c.cfg.MaxDescriptionLen]) + "..."
}

type promptCandidate struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// buildPrompt creates the prompt for product classification.
func (c *Classifier) buildPrompt(title, description string, candidates []model.CategoryNode) (string, error) {
	list := make([]promptCandidate, len(candidates))
	for i, node := range candidates {
		list[i] = promptCandidate{
			ID:    node.CollectionID,
			Title: node.Title,
			Path:  node.FullPath,
		}
	}

	listJSON, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode candidate list: %w", err)
	}

	return fmt.Sprintf(`You are a product categorization expert for an e-commerce store.

Product Title: %s
Product Description: %s

Available Collections:
%s

Task:
1. Analyze the product and assign it to 1-2 most relevant collections from the list above.
2. If the product doesn't fit well into any existing collection, suggest a new collection name and identify the closest parent collection.

Return a JSON response in this exact format:
{
    "assigned_collections": [
        {"id": "collection_id", "title": "collection_title", "confidence": 0.95}
    ],
    "new_collection_suggestion": {
        "suggested_name": "New Collection Name",
        "parent_collection": "Parent Collection Title",
        "reason": "Brief explanation"
    }
}

Rules:
- Assign to maximum 2 collections
- Only suggest new collection if confidence for all existing collections is below 0.7
- Be specific and accurate in your assignments`,
		title, description, string(listJSON)), nil
}

// buildResult converts the provider payload into the domain result,
// tolerating a model that ignores the prompt's limits.
func (c *Classifier) buildResult(resp ClassifyResponse) model.ClassificationResult {
	assigned := resp.AssignedCollections
	if len(assigned) > 2 {
		c.logger.Warn("model assigned more than two collections, keeping the first two",
			"returned", len(assigned))
		assigned = assigned[:2]
	}

	result := model.ClassificationResult{}
	for _, a := range assigned {
		if a.ID == "" {
			continue
		}
		confidence := a.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		result.Assigned = append(result.Assigned, model.AssignedCategory{
			ID:         a.ID,
			Title:      a.Title,
			Confidence: confidence,
		})
	}

	if resp.NewCollectionSuggestion != nil {
		result.Suggestion = &model.NewCollectionSuggestion{
			SuggestedName:    resp.NewCollectionSuggestion.SuggestedName,
			ParentCollection: resp.NewCollectionSuggestion.ParentCollection,
			Reason:           resp.NewCollectionSuggestion.Reason,
		}
	}

	return result
}

func (c *Classifier) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// isTimeout reports whether the error is a request-timeout signal from
// the transport or the per-request deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Close stops background goroutines and cleans up resources.
func (c *Classifier) Close() error {
	if c.rateLimiter != nil {
		c.rateLimiter.Close()
	}
	return nil
}
