// Package routing registers serving endpoints of models to the routing layer.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	xe "github.com/opst/modelflow/pkg/errors"
)

// Registration is the payload sent to the routing layer.
type Registration struct {
	ModelId   string `json:"modelId"`
	ModelName string `json:"modelName"`
	Endpoint  string `json:"endpoint"`
}

type Client struct {
	base   *url.URL
	client *http.Client
}

type Option func(*Client) *Client

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) *Client {
		cl.client = c
		return cl
	}
}

// New creates a client of the routing layer served at base.
func New(base *url.URL, options ...Option) *Client {
	c := &Client{base: base, client: http.DefaultClient}
	for _, opt := range options {
		c = opt(c)
	}
	return c
}

// Register posts the registration to "BASE/model/new".
//
// # Returns
//
// - error: *errors.Failure of RemoteFailure when the routing layer does not
// acknowledge the registration. When ctx is done, ctx.Err().
func (c *Client) Register(ctx context.Context, reg Registration) error {
	buf, err := json.Marshal(reg)
	if err != nil {
		return err
	}

	u := c.base.JoinPath("model", "new")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(ctx, req, "registering "+reg.ModelId)
}

// Deregister deletes "BASE/model/MODEL_ID".
//
// A model which is not routed is taken as deregistered.
//
// # Returns
//
// - error: *errors.Failure of RemoteFailure when the routing layer does not
// acknowledge the deregistration. When ctx is done, ctx.Err().
func (c *Client) Deregister(ctx context.Context, modelId string) error {
	u := c.base.JoinPath("model", modelId)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return err
	}

	return c.do(ctx, req, "deregistering "+modelId, http.StatusNotFound)
}

// do sends req, and accepts 2xx and additional status codes.
func (c *Client) do(ctx context.Context, req *http.Request, what string, accepts ...int) error {
	resp, err := c.client.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return xe.FailBy(xe.RemoteFailure, fmt.Sprintf("%s to %s", what, req.URL), err)
	}
	defer resp.Body.Close()

	if 200 <= resp.StatusCode && resp.StatusCode < 300 || slices.Contains(accepts, resp.StatusCode) {
		return nil
	}

	ctype := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ctype, "text/") && !(strings.HasPrefix(ctype, "application/") && strings.Contains(ctype, "json")) {
		return xe.Fail(
			xe.RemoteFailure, "%s: %s %d (Content-Type: %s)",
			what, req.URL, resp.StatusCode, ctype,
		)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return xe.Fail(
		xe.RemoteFailure, "%s: %s %d (Content-Type: %s): %s",
		what, req.URL, resp.StatusCode, ctype, string(body),
	)
}
