package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BartekS5/breweries/pkg/logger"
)

// SnapshotTimeFormat names bronze snapshot files. Two fetches within the
// same second share a name and the later one wins.
const SnapshotTimeFormat = "20060102_150405"

// FetchError reports a non-200 response from the API.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("API request failed with status code %d", e.StatusCode)
}

// FetchResult is what the fetch step hands to the load step.
type FetchResult struct {
	Payload      Payload
	SnapshotPath string
	FetchedAt    time.Time
	Bytes        int
}

// HTTPFetcher pulls the brewery list with one GET and lands the raw body in
// the bronze directory.
type HTTPFetcher struct {
	URL        string
	BronzePath string
	Client     *http.Client
	Now        func() time.Time
}

// NewHTTPFetcher returns a fetcher with a client that sets no timeout;
// cancellation comes from the caller's context only.
func NewHTTPFetcher(url, bronzePath string) *HTTPFetcher {
	return &HTTPFetcher{
		URL:        url,
		BronzePath: bronzePath,
		Client:     &http.Client{},
		Now:        time.Now,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (*FetchResult, error) {
	logger.Infof("Fetching data from API %s", f.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "breweries-pipeline/1.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &FetchError{URL: f.URL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode API response: %w", err)
	}

	fetchedAt := f.Now()
	path := filepath.Join(f.BronzePath, "raw_data_"+fetchedAt.Format(SnapshotTimeFormat)+".json")
	if err := os.WriteFile(path, body, 0644); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	logger.Infof("Fetched %d records, snapshot saved to %s", len(payload), path)
	return &FetchResult{
		Payload:      payload,
		SnapshotPath: path,
		FetchedAt:    fetchedAt,
		Bytes:        len(body),
	}, nil
}

// ReadSnapshot decodes a bronze snapshot file back into a payload, for
// replaying a load without calling the API.
func ReadSnapshot(path string) (Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot '%s': %w", path, err)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot '%s': %w", path, err)
	}
	return payload, nil
}
