package runner

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sockbench/internal/pool"
)

// Target performs one logical request and returns the response.
type Target interface {
	Send(ctx context.Context, message string) (string, error)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, message string) (string, error)

func (f TargetFunc) Send(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// PoolTarget exchanges directly over pooled connections.
type PoolTarget struct {
	Pool *pool.Pool
}

func (t PoolTarget) Send(ctx context.Context, message string) (string, error) {
	c, err := t.Pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer t.Pool.Release(c)

	return c.Exchange(ctx, message)
}

// StatusError is a non-200 answer from the gateway.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad http status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// HTTPTarget drives the gateway's exchange endpoint.
type HTTPTarget struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTarget(baseURL string, timeout time.Duration) *HTTPTarget {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &HTTPTarget{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
	}
}

func (t *HTTPTarget) Send(ctx context.Context, message string) (string, error) {
	u := t.BaseURL + "/exchange?message=" + url.QueryEscape(message)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}
