package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

// Client calls the filter producer service with rate limiting, retries, and
// a circuit breaker.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	retryCount int
	log        *logrus.Logger
}

// NewClient creates a new producer client
func NewClient(config domain.ProducerConfig, logger *logrus.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "FilterProducer",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:    breaker,
		retryCount: config.RetryCount,
		log:        logger,
	}
}

// ProcessQuery sends a natural-language query to the producer and validates
// the suggested criteria into domain filters. Criteria that fail validation
// are dropped and counted rather than failing the whole query.
func (c *Client) ProcessQuery(ctx context.Context, query, sessionID string) (*QueryResult, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doProcessQuery(ctx, query, sessionID)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("filter producer unavailable (circuit breaker open)")
		}
		return nil, fmt.Errorf("producer query failed: %w", err)
	}

	response := result.(*QueryResponse)

	out := &QueryResult{
		Interpretation: response.Interpretation,
		ProcessedAt:    time.Now().UTC(),
	}
	for _, criterion := range response.Criteria {
		filter, err := criterion.ToFilter()
		if err != nil {
			out.Rejected++
			c.log.WithFields(logrus.Fields{
				"criterion": criterion.Text,
				"error":     err,
			}).Warn("Rejected invalid producer criterion")
			continue
		}
		out.Filters = append(out.Filters, filter)
	}

	c.log.WithFields(logrus.Fields{
		"query":    query,
		"accepted": len(out.Filters),
		"rejected": out.Rejected,
	}).Info("Processed natural-language query")

	return out, nil
}

// doProcessQuery performs the HTTP round trip with retries
func (c *Client) doProcessQuery(ctx context.Context, query, sessionID string) (*QueryResponse, error) {
	body, err := json.Marshal(QueryRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			// Exponential backoff between retries.
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := c.sendRequest(ctx, body)
		if err == nil {
			return response, nil
		}
		lastErr = err

		c.log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err,
		}).Debug("Producer request attempt failed")
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", c.retryCount+1, lastErr)
}

func (c *Client) sendRequest(ctx context.Context, body []byte) (*QueryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/process-query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("producer returned status %d: %s", resp.StatusCode, string(data))
	}

	var response QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &response, nil
}

// Health checks the producer service health endpoint
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("producer health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("producer unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// BreakerCounts returns the circuit breaker request counters
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}
