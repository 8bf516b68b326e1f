package s3mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config addresses an S3-compatible bucket. Region defaults to "auto",
// which is what R2 and most self-hosted gateways accept.
type Config struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Timeout         time.Duration
}

// Client uploads files with path-style addressing.
type Client struct {
	base   string
	bucket string
	signer signer
	http   *http.Client
	now    func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	if endpoint == "" || bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("s3mirror: endpoint, bucket and credentials are required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("s3mirror: invalid endpoint %q", cfg.Endpoint)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "auto"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		base:   strings.TrimRight(u.String(), "/"),
		bucket: bucket,
		signer: signer{accessKeyID: strings.TrimSpace(cfg.AccessKeyID), secret: strings.TrimSpace(cfg.SecretAccessKey), region: region},
		http:   &http.Client{Timeout: timeout},
		now:    time.Now,
	}, nil
}

// PutFile uploads localPath as key. Snapshots and archive files are small
// enough to hash in memory before sending.
func (c *Client) PutFile(ctx context.Context, key, localPath string) error {
	key = cleanKey(key)
	if key == "" {
		return fmt.Errorf("s3mirror: empty object key for %s", localPath)
	}
	body, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+"/"+c.bucket+"/"+escapeKey(key), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	c.signer.sign(req, hexSHA256(body), c.now())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	return fmt.Errorf("s3mirror: put %s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(msg)))
}
