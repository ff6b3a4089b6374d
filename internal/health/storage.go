package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// StorageChecker implements health checking for the S3-compatible map storage.
type StorageChecker struct {
	url    string
	client *http.Client
}

// NewStorageChecker creates a new storage health checker.
// The url should be the base endpoint of the object storage
// (e.g., "https://account.r2.cloudflarestorage.com").
func NewStorageChecker(url string) *StorageChecker {
	return &StorageChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck performs a health check on the storage endpoint by making an
// HTTP request. S3-compatible endpoints respond to unauthenticated requests
// with 403, which still proves the service is reachable.
func (s *StorageChecker) HealthCheck(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("storage endpoint not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach storage endpoint: %w", err)
	}
	defer resp.Body.Close()

	// Server errors indicate the storage backend itself is unhealthy.
	// 2xx-4xx all prove reachability.
	if resp.StatusCode >= 500 {
		return fmt.Errorf("storage unhealthy: unexpected status code %d", resp.StatusCode)
	}

	return nil
}
