package nomenclature

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

const sampleGGroups = `# file: hla_nom_g.txt
# version: test

A*;01:01:01:01/01:01:01:02N;01:01:01G
A*;01:02;
`

func TestReadCleanLines(t *testing.T) {
	lines, err := readCleanLines(strings.NewReader(sampleGGroups))
	require.NoError(t, err)
	assert.Equal(t, []string{"A*;01:01:01:01/01:01:01:02N;01:01:01G", "A*;01:02;"}, lines)
}

func TestMemorySource_ReadLines(t *testing.T) {
	src := NewMemorySource()
	src.Put("3330", FileGGroups, sampleGGroups)

	lines, err := src.ReadLines(context.Background(), "3330", FileGGroups)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	_, err = src.ReadLines(context.Background(), "3330", FilePGroups)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.ReadLines(ctx, "3330", FileGGroups)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirectorySource_ReadLines(t *testing.T) {
	src := NewDirectorySource("nomenclaturetest/fixtures", testLogger())

	lines, err := src.ReadLines(context.Background(), "3330", FileGGroups)
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	assert.Equal(t, "A*;01:01:01:01/01:01:01:02N/01:01:38L;01:01:01G", lines[0])
	for _, line := range lines {
		assert.False(t, strings.HasPrefix(line, "#"))
	}

	_, err = src.ReadLines(context.Background(), "9999", FileGGroups)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestHTTPSource_ReadLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/3330/wmda/hla_nom_g.txt":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, sampleGGroups)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	src := NewHTTPSource(domain.NomenclatureConfig{
		BaseURL:   server.URL + "/",
		Timeout:   5 * time.Second,
		RateLimit: 100,
	}, testLogger())

	lines, err := src.ReadLines(context.Background(), "3330", FileGGroups)
	require.NoError(t, err)
	assert.Equal(t, []string{"A*;01:01:01:01/01:01:01:02N;01:01:01G", "A*;01:02;"}, lines)

	_, err = src.ReadLines(context.Background(), "3330", FileNmdpCodes)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestHTTPSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, sampleGGroups)
	}))
	defer server.Close()

	src := NewHTTPSource(domain.NomenclatureConfig{
		BaseURL:    server.URL,
		RateLimit:  100,
		RetryCount: 2,
	}, testLogger())

	lines, err := src.ReadLines(context.Background(), "3330", FileGGroups)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPSource_CircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	src := NewHTTPSource(domain.NomenclatureConfig{
		BaseURL:   server.URL,
		RateLimit: 100,
		CircuitBreaker: domain.CircuitBreakerConfig{
			FailureThreshold: 2,
			Timeout:          time.Minute,
		},
	}, testLogger())

	for i := 0; i < 2; i++ {
		_, err := src.ReadLines(context.Background(), "3330", FileGGroups)
		require.Error(t, err)
	}

	_, err := src.ReadLines(context.Background(), "3330", FileGGroups)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPSource_NotFoundDoesNotTripCircuit(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	src := NewHTTPSource(domain.NomenclatureConfig{
		BaseURL:        server.URL,
		RateLimit:      100,
		CircuitBreaker: domain.CircuitBreakerConfig{FailureThreshold: 1},
	}, testLogger())

	for i := 0; i < 3; i++ {
		_, err := src.ReadLines(context.Background(), "3330", FileNmdpCodes)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	}
}

func TestS3Source_ReadLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/releases-bucket/imgt/3330/wmda/hla_nom_g.txt" {
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, sampleGGroups)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
	}))
	defer server.Close()

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIA", "SECRET", ""),
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
	})
	src := NewS3SourceWithClient(client, "releases-bucket", "imgt", testLogger())

	lines, err := src.ReadLines(context.Background(), "3330", FileGGroups)
	require.NoError(t, err)
	assert.Equal(t, []string{"A*;01:01:01:01/01:01:01:02N;01:01:01G", "A*;01:02;"}, lines)

	_, err = src.ReadLines(context.Background(), "3330", FileNmdpCodes)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNewS3Source_RequiresBucket(t *testing.T) {
	_, err := NewS3Source(context.Background(), domain.S3Config{}, testLogger())
	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}
