// Package service implements the HTTP client for the destination
// configuration service: the fetch collaborators consumed by the destination
// engine. Calls run under a circuit breaker and timeout; failures surface as
// the engine's typed errors.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tenantgrid/destination-bridge/internal/config"
	"github.com/tenantgrid/destination-bridge/internal/destination"
	"github.com/tenantgrid/destination-bridge/internal/resilience"
)

const (
	pathDestination            = "/destination-configuration/v1/destinations/{name}"
	pathInstanceDestinations   = "/destination-configuration/v1/instanceDestinations"
	pathSubaccountDestinations = "/destination-configuration/v1/subaccountDestinations"

	headerUserToken    = "X-User-Token"
	headerRefreshToken = "X-Refresh-Token"
	headerOnBehalfOf   = "X-On-Behalf-Of"
)

// Client calls the destination configuration service. It implements
// destination.Client.
type Client struct {
	rest   *resty.Client
	tokens *tokenSource
	exec   *resilience.Executor

	now func() time.Time
}

// New creates a client for the configured destination service. The client
// uses http.DefaultClient, inheriting the process-wide instrumented
// transport.
func New(cfg config.DestinationServiceConfig) (*Client, error) {
	if cfg.ServiceURL == "" {
		return nil, errors.New("destination service URL must be configured")
	}

	rest := resty.NewWithClient(http.DefaultClient).
		SetBaseURL(strings.TrimRight(cfg.ServiceURL, "/")).
		SetHeader("Accept", "application/json")

	exec := resilience.NewExecutor(resilience.Config{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		IsFailure: func(err error) bool {
			// A "not found" answer proves the service is healthy.
			var notFound *destination.NotFoundError
			return err != nil && !errors.As(err, &notFound)
		},
	})

	return &Client{
		rest:   rest,
		tokens: newTokenSource(cfg),
		exec:   exec,
		now:    time.Now,
	}, nil
}

// FetchDestination retrieves a single destination, including its auth tokens
// and certificates, on behalf of the resolved identity.
func (c *Client) FetchDestination(ctx context.Context, name string, strategy destination.FetchStrategy, opts destination.Options) (*destination.Destination, error) {
	var result *destination.Destination

	err := c.exec.Execute(ctx, func(ctx context.Context) error {
		req, err := c.request(ctx, strategy)
		if err != nil {
			return err
		}

		for k, v := range opts.Properties {
			req.SetQueryParam(k, v)
		}

		resp, err := req.SetPathParam("name", name).Get(pathDestination)
		if err != nil {
			return &destination.AccessError{Reason: "destination service unreachable", Cause: err}
		}

		switch resp.StatusCode() {
		case http.StatusOK:
			result, err = parseDestination(resp.Body(), c.now())
			if err != nil {
				return &destination.AccessError{Reason: "malformed destination service response", Cause: err}
			}
			return nil
		case http.StatusNotFound:
			return &destination.NotFoundError{Name: name}
		default:
			return statusError(resp)
		}
	})
	if err != nil {
		return nil, typed(err)
	}

	return result, nil
}

// FetchInstanceDestinations retrieves the service-instance level listing.
func (c *Client) FetchInstanceDestinations(ctx context.Context, behalf destination.OnBehalfOf) ([]*destination.Destination, error) {
	return c.fetchListing(ctx, behalf, pathInstanceDestinations)
}

// FetchSubaccountDestinations retrieves the subaccount level listing.
func (c *Client) FetchSubaccountDestinations(ctx context.Context, behalf destination.OnBehalfOf) ([]*destination.Destination, error) {
	return c.fetchListing(ctx, behalf, pathSubaccountDestinations)
}

func (c *Client) fetchListing(ctx context.Context, behalf destination.OnBehalfOf, path string) ([]*destination.Destination, error) {
	var result []*destination.Destination

	err := c.exec.Execute(ctx, func(ctx context.Context) error {
		req, err := c.request(ctx, destination.FetchStrategy{Behalf: behalf})
		if err != nil {
			return err
		}

		resp, err := req.Get(path)
		if err != nil {
			return &destination.AccessError{Reason: "destination service unreachable", Cause: err}
		}

		if resp.StatusCode() != http.StatusOK {
			return statusError(resp)
		}

		result, err = parseListing(resp.Body())
		if err != nil {
			return &destination.AccessError{Reason: "malformed destination service response", Cause: err}
		}
		return nil
	})
	if err != nil {
		return nil, typed(err)
	}

	return result, nil
}

// request prepares an authenticated request for the given fetch strategy:
// a technical user token for the target tenant, plus the strategy's token
// material as exchange headers.
func (c *Client) request(ctx context.Context, strategy destination.FetchStrategy) (*resty.Request, error) {
	token, err := c.tokens.token(ctx, strategy.Behalf)
	if err != nil {
		return nil, &destination.AccessError{Reason: "technical user token unavailable", Cause: err}
	}

	req := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader(headerOnBehalfOf, string(strategy.Behalf))

	if strategy.UserToken != "" {
		req.SetHeader(headerUserToken, strategy.UserToken)
	}
	if strategy.RefreshToken != "" {
		req.SetHeader(headerRefreshToken, strategy.RefreshToken)
	}

	return req, nil
}

func statusError(resp *resty.Response) error {
	return &destination.AccessError{
		Reason: fmt.Sprintf("destination service responded with status %d", resp.StatusCode()),
	}
}

// typed ensures every error leaving the client is one of the engine's typed
// errors, wrapping resilience failures (open breaker, timeout) on the way.
func typed(err error) error {
	var notFound *destination.NotFoundError
	var access *destination.AccessError
	if errors.As(err, &notFound) || errors.As(err, &access) {
		return err
	}
	return &destination.AccessError{Reason: "destination service call failed", Cause: err}
}
