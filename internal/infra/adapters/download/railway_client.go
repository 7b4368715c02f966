package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-knowledge-bot/internal/config"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
)

// RailwayClient talks to the remote yt-dlp HTTP service. The service is
// asynchronous: a download request returns a request id, the client polls the
// status endpoint until the file is ready, then fetches it to a temp file.
type RailwayClient struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	tmpDir       string
	httpClient   *http.Client
	log          *zerolog.Logger
}

var _ adapter.Downloader = (*RailwayClient)(nil)

func NewRailwayClient(cfg *config.DownloaderConfig, log *zerolog.Logger) *RailwayClient {
	return &RailwayClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		tmpDir:       os.TempDir(),
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		log:          log,
	}
}

type downloadRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type downloadAccepted struct {
	RequestID string `json:"request_id"`
}

type downloadStatus struct {
	Status  string `json:"status"` // queued | processing | completed | failed
	FileURL string `json:"file_url"`
	Error   string `json:"error"`
}

// Download runs the full request/poll/fetch cycle for one format selector
// and returns the local path of the fetched file.
func (c *RailwayClient) Download(ctx context.Context, url, format string) (string, error) {
	reqID, err := c.requestDownload(ctx, url, format)
	if err != nil {
		return "", err
	}

	fileURL, err := c.awaitCompletion(ctx, reqID)
	if err != nil {
		return "", err
	}

	return c.fetchFile(ctx, fileURL)
}

// Cleanup removes a previously downloaded temp file.
func (c *RailwayClient) Cleanup(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Healthy probes the service's health endpoint.
func (c *RailwayClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download service unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *RailwayClient) requestDownload(ctx context.Context, url, format string) (string, error) {
	body, err := json.Marshal(downloadRequest{URL: url, Format: format})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/download", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("download request rejected: %s: %s", resp.Status, string(b))
	}

	var accepted downloadAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return "", fmt.Errorf("decode download response: %w", err)
	}
	if accepted.RequestID == "" {
		return "", fmt.Errorf("download service returned no request id")
	}
	return accepted.RequestID, nil
}

func (c *RailwayClient) awaitCompletion(ctx context.Context, reqID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		st, err := c.pollStatus(ctx, reqID)
		if err != nil {
			return "", err
		}
		switch st.Status {
		case "completed":
			if st.FileURL == "" {
				return "", fmt.Errorf("download completed without a file url")
			}
			return st.FileURL, nil
		case "failed":
			return "", fmt.Errorf("remote download failed: %s", st.Error)
		case "queued", "processing":
			// keep polling
		default:
			return "", fmt.Errorf("unknown download status %q", st.Status)
		}
	}
}

func (c *RailwayClient) pollStatus(ctx context.Context, reqID string) (*downloadStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+reqID, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status poll failed: %s", resp.Status)
	}

	var st downloadStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &st, nil
}

func (c *RailwayClient) fetchFile(ctx context.Context, fileURL string) (string, error) {
	url := fileURL
	if strings.HasPrefix(url, "/") {
		url = c.baseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("file fetch failed: %s", resp.Status)
	}

	path := filepath.Join(c.tmpDir, "kb-video-"+uuid.NewString()+".mp4")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write video file: %w", err)
	}
	c.log.Debug().Str("path", path).Int64("bytes", n).Msg("video downloaded")
	return path, nil
}
