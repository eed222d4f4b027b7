package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/urfave/cli/v3"
)

const userHeader = "X-User-ID"

// apiClient calls the migrator API on behalf of one tenant or operator
type apiClient struct {
	http  *resty.Client
	user  string
	token string
}

type apiError struct {
	Error string `json:"error"`
}

func newAPIClient(cmd *cli.Command) *apiClient {
	return &apiClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cmd.String("server"), "/")+"/api/v1").
			SetTimeout(cmd.Duration("timeout")).
			SetHeader("Accept", "application/json"),
		user:  cmd.String("user"),
		token: cmd.String("token"),
	}
}

// tenant calls a tenant endpoint. out may be nil.
func (c *apiClient) tenant(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	if c.user == "" {
		return fmt.Errorf("--user (or MIGRATOR_USER_ID) is required")
	}
	req := c.http.R().SetHeader(userHeader, c.user)
	return c.do(ctx, req, method, path, query, body, out)
}

// operator calls a runner-token endpoint
func (c *apiClient) operator(ctx context.Context, method, path string, query map[string]string, out interface{}) error {
	if c.token == "" {
		return fmt.Errorf("--token (or MIGRATOR_RUNNER_TOKEN) is required")
	}
	req := c.http.R().SetAuthToken(c.token)
	return c.do(ctx, req, method, path, query, nil, out)
}

func (c *apiClient) do(ctx context.Context, req *resty.Request, method, path string, query map[string]string, body, out interface{}) error {
	req.SetContext(ctx).SetError(&apiError{})
	for k, v := range query {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status(), e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status())
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

