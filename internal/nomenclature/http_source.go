package nomenclature

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/hla-matching-engine/internal/domain"
)

// DefaultBaseURL serves IMGT/HLA releases by branch name.
const DefaultBaseURL = "https://raw.githubusercontent.com/ANHIG/IMGTHLA"

// HTTPSource fetches release files over HTTP as <base>/<version>/<file>.
type HTTPSource struct {
	baseURL        string
	httpClient     *http.Client
	rateLimit      *rate.Limiter
	circuitBreaker *gobreaker.CircuitBreaker
	retryCount     int
	logger         *logrus.Logger
}

// NewHTTPSource creates an HTTP source from nomenclature configuration.
func NewHTTPSource(config domain.NomenclatureConfig, logger *logrus.Logger) *HTTPSource {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.CircuitBreaker.MaxRequests == 0 {
		config.CircuitBreaker.MaxRequests = 3
	}
	if config.CircuitBreaker.Interval == 0 {
		config.CircuitBreaker.Interval = 10 * time.Second
	}
	if config.CircuitBreaker.Timeout == 0 {
		config.CircuitBreaker.Timeout = 30 * time.Second
	}
	if config.CircuitBreaker.FailureThreshold == 0 {
		config.CircuitBreaker.FailureThreshold = 5
	}

	cbSettings := gobreaker.Settings{
		Name:        "NomenclatureHTTP",
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.CircuitBreaker.FailureThreshold
		},
		// Optional files are legitimately absent from some releases.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from,
				"to_state":        to,
			}).Warn("Circuit breaker state changed")
		},
	}

	return &HTTPSource{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		httpClient:     &http.Client{Timeout: config.Timeout},
		rateLimit:      rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		retryCount:     config.RetryCount,
		logger:         logger,
	}
}

// ReadLines implements domain.NomenclatureSource. HTTP 404 yields domain.ErrNotFound.
func (h *HTTPSource) ReadLines(ctx context.Context, version, fileName string) ([]string, error) {
	url := fmt.Sprintf("%s/%s/%s", h.baseURL, version, fileName)

	var lastErr error
	for attempt := 0; attempt <= h.retryCount; attempt++ {
		result, err := h.circuitBreaker.Execute(func() (interface{}, error) {
			return h.fetch(ctx, url)
		})
		if err == nil {
			lines := result.([]string)
			h.logger.WithFields(logrus.Fields{
				"version": version,
				"file":    fileName,
				"lines":   len(lines),
				"attempt": attempt + 1,
			}).Debug("Fetched nomenclature file")
			return lines, nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			break
		}
		h.logger.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Nomenclature fetch failed, retrying")
	}
	return nil, fmt.Errorf("fetching %s: %w", url, lastErr)
}

func (h *HTTPSource) fetch(ctx context.Context, url string) ([]string, error) {
	if err := h.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	lines, err := readCleanLines(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return lines, nil
}
