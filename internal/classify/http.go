package classify

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/openshelf/openshelf-server/internal/config"
	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/errors"
)

// Client calls the external classification service over HTTP. It satisfies
// the Classifier interface; failures come back with an external-service code
// so callers can skip the step and retry on the next recompute.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a classification service client from configuration.
func NewClient(cfg config.ClassifierConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:      logger.With("component", "classifier"),
	}
}

// wait blocks until the rate limiter allows another request.
func (c *Client) wait(ctx context.Context) error {
	return c.rateLimiter.Wait(ctx)
}

type classifyRequest struct {
	Subjects []classifySubject `json:"subjects"`
}

type classifySubject struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	Weight     int    `json:"weight"`
}

// Classify posts the cluster's subject assertions to the classification
// service and returns its verdict.
func (c *Client) Classify(ctx context.Context, facts []*domain.Classification) (*Result, error) {
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	reqBody := classifyRequest{Subjects: make([]classifySubject, 0, len(facts))}
	for _, f := range facts {
		reqBody.Subjects = append(reqBody.Subjects, classifySubject{
			Type:       f.SubjectType,
			Identifier: f.SubjectIdentifier,
			Name:       f.SubjectName,
			Weight:     f.Weight,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternalService, "classify request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.ExternalService(fmt.Sprintf("classify failed: status %d", resp.StatusCode))
	}

	var result Result
	if err := json.UnmarshalRead(resp.Body, &result); err != nil {
		return nil, errors.Wrap(err, errors.CodeExternalService, "parse classify response")
	}

	c.logger.Debug("classification received",
		"subjects", len(facts),
		"genres", len(result.Genres),
		"audience", result.Audience,
	)

	return &result, nil
}

// EvaluatorClient calls the external text-quality service that scores
// candidate summaries against each other.
type EvaluatorClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewEvaluatorClient creates a summary evaluator client from configuration.
func NewEvaluatorClient(cfg config.EvaluatorConfig, logger *slog.Logger) *EvaluatorClient {
	return &EvaluatorClient{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:      logger.With("component", "evaluator"),
	}
}

func (c *EvaluatorClient) wait(ctx context.Context) error {
	return c.rateLimiter.Wait(ctx)
}

type evaluateRequest struct {
	Texts []string `json:"texts"`
}

type evaluateResponse struct {
	Scores []float64 `json:"scores"`
}

// Evaluate scores the given texts. The returned slice is positionally
// aligned with the input.
func (c *EvaluatorClient) Evaluate(ctx context.Context, texts []string) ([]float64, error) {
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	payload, err := json.Marshal(evaluateRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternalService, "evaluate request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.ExternalService(fmt.Sprintf("evaluate failed: status %d", resp.StatusCode))
	}

	var evalResp evaluateResponse
	if err := json.UnmarshalRead(resp.Body, &evalResp); err != nil {
		return nil, errors.Wrap(err, errors.CodeExternalService, "parse evaluate response")
	}

	if len(evalResp.Scores) != len(texts) {
		return nil, errors.ExternalService(fmt.Sprintf(
			"evaluator returned %d scores for %d texts", len(evalResp.Scores), len(texts)))
	}

	return evalResp.Scores, nil
}
