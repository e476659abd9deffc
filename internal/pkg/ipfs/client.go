package ipfs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pintrader/pintrader-backend/internal/pkg/cid"
	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Client talks to an IPFS-compatible daemon over its HTTP RPC API. Every
// call may fail; the client performs no retries of its own — retry policy
// belongs to the caller.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a pinning backend client.
func New(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log,
	}, nil
}

// Session is a verified connection to the daemon. It is obtained once per
// processing cycle so a dead backend is detected before any record is touched.
type Session struct {
	client  *Client
	version string
}

// Connect probes the daemon and returns a session on success.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	body, err := c.post(ctx, "/api/v0/version", "", nil)
	if err != nil {
		return nil, fmt.Errorf("connect to pinning daemon: %w", err)
	}

	version := gjson.GetBytes(body, "Version").String()
	if version == "" {
		return nil, fmt.Errorf("connect to pinning daemon: unexpected version response: %s", body)
	}

	c.logger.Debug("connected to pinning daemon",
		zap.String("addr", c.config.APIAddr),
		zap.String("version", version))

	return &Session{client: c, version: version}, nil
}

// Version reports the daemon version observed at connect time.
func (s *Session) Version() string {
	return s.version
}

// Pin submits the content to the daemon and returns the assigned content
// identifier in cid.Derive's canonical form. The add options request a CIDv1
// raw-leaf sha2-256 identifier; the daemon prints it in multibase base32, so
// the reply is re-encoded and checked against the digest of the bytes that
// were actually sent before anything is persisted.
func (s *Session) Pin(ctx context.Context, name string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build add request: %w", err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(part, io.TeeReader(r, hasher)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build add request: %w", err)
	}

	const path = "/api/v0/add?cid-version=1&raw-leaves=true&hash=sha2-256&pin=true"
	body, err := s.client.post(ctx, path, mw.FormDataContentType(), &buf)
	if err != nil {
		return "", fmt.Errorf("pin content: %w", err)
	}

	// The add endpoint replies with one JSON object per line; the final
	// line carries the root hash.
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	hash := gjson.Get(lines[len(lines)-1], "Hash").String()
	if hash == "" {
		return "", fmt.Errorf("pin content: no hash in daemon response: %s", body)
	}

	id, err := cid.Normalize(hash)
	if err != nil {
		return "", fmt.Errorf("pin content: %w", err)
	}
	if want := cid.FromDigest(hasher.Sum(nil)); id != want {
		return "", fmt.Errorf("pin content: daemon identifier %s does not name the submitted bytes (want %s)", id, want)
	}

	return id, nil
}

// Close releases idle connections held for the session.
func (s *Session) Close() error {
	s.client.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	url := c.config.APIAddr + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("daemon request failed",
			zap.String("url", url),
			zap.Error(err))
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, respData)
	}

	return respData, nil
}
