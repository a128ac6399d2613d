package net

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang/glog"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultConcurrency = 3
	DefaultTimeout     = 30 * time.Second
)

// Request is one backend call. GET requests send Query as query items; other
// methods send Body as JSON.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   any
}

type Response struct {
	StatusCode int
	Body       []byte
}

// Doer executes a single request attempt. A transport failure is reported as
// an error; any HTTP response, whatever its status, is returned as is.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Client is the HTTP transport shared by all operations. At most Concurrency
// requests are in flight at once; further callers wait for a slot.
type Client struct {
	http *resty.Client
	sem  *semaphore.Weighted
}

type ClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
	UserAgent   string
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Client{
		http: c,
		sem:  semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for connection slot: %w", err)
	}
	defer c.sem.Release(1)

	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if req.Method == http.MethodGet {
		r.SetQueryParams(req.Query)
	} else if req.Body != nil {
		r.SetBody(req.Body)
	}

	glog.V(2).Infof("net: %s %s", req.Method, req.Path)
	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	glog.V(2).Infof("net: %s %s -> %d (%d bytes)", req.Method, req.Path, resp.StatusCode(), len(resp.Body()))
	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}
