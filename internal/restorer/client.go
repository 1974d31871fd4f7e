package restorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"phRestore/internal/config"
	"phRestore/internal/jobs"
)

const (
	restorePath     = "/v1/restore"
	maxResultBytes  = 64 << 20
	maxErrBodyBytes = 8 * 1024
)

// ErrRejected 表示修复服务拒绝了输入（4xx），重试不会成功。
var ErrRejected = errors.New("image rejected by restoration service")

// Result 是修复服务返回的图片。
type Result struct {
	Data        []byte
	ContentType string
}

// Client 调用外部照片修复服务。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 根据配置构造 Client。
func NewClient(cfg config.RestorerConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("restorer base url missing")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse restorer base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Restore 上传原图并返回修复后的图片。
func (c *Client) Restore(ctx context.Context, image []byte, contentType string, opts jobs.Options) (Result, error) {
	query := url.Values{}
	query.Set("colorize", strconv.FormatBool(opts.Colorize))
	query.Set("upscale", strconv.Itoa(opts.Upscale))
	query.Set("face_enhance", strconv.FormatBool(opts.FaceEnhance))
	query.Set("scratch_removal", strconv.FormatBool(opts.ScratchRemoval))

	targetURL := c.baseURL + restorePath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(image))
	if err != nil {
		return Result{}, fmt.Errorf("build restore request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "image/png")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request restoration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		msg := strings.TrimSpace(string(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Result{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
		}
		return Result{}, fmt.Errorf("restoration status %d: %s", resp.StatusCode, msg)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("read restoration result: %w", err)
	}
	if len(data) == 0 {
		return Result{}, errors.New("restoration service returned empty body")
	}
	if len(data) > maxResultBytes {
		return Result{}, fmt.Errorf("restoration result exceeds %d bytes", maxResultBytes)
	}

	resultType := resp.Header.Get("Content-Type")
	if resultType == "" {
		resultType = http.DetectContentType(data)
	}
	return Result{Data: data, ContentType: resultType}, nil
}
