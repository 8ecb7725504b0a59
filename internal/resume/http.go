package resume

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/interview"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"
	userAgent       = "interviewpilot"
)

// Gateway reads resumes through the gateway HTTP API with a service token.
type Gateway struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func NewGateway(apiURL, token string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		token:  token,
		APIURL: strings.TrimRight(apiURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
	}
}

func (g *Gateway) Name() string { return "http" }

// Get fetches GET {api}/resumes/{id}. 404 maps to ErrResumeNotFound, other
// 4xx responses are rejections and 5xx responses are left transient.
func (g *Gateway) Get(ctx context.Context, id int64) (*Resume, error) {
	apiURL := fmt.Sprintf("%s/resumes/%d", g.APIURL, id)

	var raw map[string]any
	if err := g.getJSON(ctx, apiURL, &raw); err != nil {
		return nil, err
	}

	var r Resume
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &r,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode resume %d: %w: %w", id, interview.ErrUpstreamRejected, err)
	}
	if created, ok := raw["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			r.CreatedAt = t.UTC()
		}
	}
	if r.ID == 0 {
		r.ID = id
	}

	return &r, nil
}

func (g *Gateway) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.token))
	req.Header.Set("User-Agent", g.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("Accept", contentType)

	g.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return interview.ErrResumeNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("bad status: %s", resp.Status)
	default:
		return fmt.Errorf("bad status: %s: %w", resp.Status, interview.ErrUpstreamRejected)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w: %w", interview.ErrUpstreamRejected, err)
	}
	return nil
}
