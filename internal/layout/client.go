package layout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables limiting
}

// Client talks to the layout/OCR service over JSON.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

type analyzeRequest struct {
	DocumentID    string `json:"document_id"`
	ApplicationID string `json:"application_id"`
	Filename      string `json:"filename"`
	DocumentType  string `json:"document_type"`
	SourceURI     string `json:"source_uri"`
}

type analyzeResponse struct {
	Format    string               `json:"format"`
	Text      string               `json:"text"`
	PageCount int                  `json:"page_count"`
	Pages     []extract.PageLayout `json:"pages"`
	Metadata  extract.Metadata     `json:"metadata"`
}

// Analyze implements extract.LayoutProvider.
func (c *Client) Analyze(ctx context.Context, doc *entity.Document) (extract.LayoutResult, error) {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return extract.LayoutResult{}, fmt.Errorf("rate limiter: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/analyze"
	raw, err := c.sendJSON(ctx, url, analyzeRequest{
		DocumentID:    doc.ID.String(),
		ApplicationID: doc.ApplicationID.String(),
		Filename:      doc.Filename,
		DocumentType:  string(doc.DocumentType),
		SourceURI:     doc.SourceURI,
	})
	if err != nil {
		return extract.LayoutResult{}, err
	}

	var resp analyzeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Error("layout.decode_error", "document_id", doc.ID, "error", err, "raw_bytes", len(raw))
		return extract.LayoutResult{}, fmt.Errorf("decode layout response: %w", err)
	}

	format := constants.DocumentFormat(strings.ToUpper(resp.Format))
	if format != constants.PDF && format != constants.IMAGE {
		format = constants.MapExtToFormat(extOf(doc.Filename))
	}
	return extract.LayoutResult{
		DocumentID:    doc.ID,
		Format:        format,
		Text:          resp.Text,
		Pages:         resp.Pages,
		ExpectedPages: resp.PageCount,
		Metadata:      resp.Metadata,
		Duration:      time.Since(start),
	}, nil
}

// sendJSON posts a JSON body and returns the raw response body.
func (c *Client) sendJSON(ctx context.Context, url string, body any) ([]byte, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		c.logger.Error("layout.http.encode_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		c.logger.Error("layout.http.build_request_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	c.logger.Debug("layout.http.request", "req_id", reqID, "url", url, "content_length", len(bs))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("layout.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Warn("layout.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Info("layout.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("layout service status %d", resp.StatusCode)
	}
	return raw, nil
}

func extOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
