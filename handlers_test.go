package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantgrid/destination-bridge/internal/destination"
	"github.com/tenantgrid/destination-bridge/internal/testhelpers"
)

type fakeAPI struct {
	getFn    func(ctx context.Context, name string, opts destination.Options) (*destination.Destination, error)
	getAllFn func(ctx context.Context, opts destination.Options) ([]*destination.Destination, error)

	lastName string
	lastOpts destination.Options
}

func (f *fakeAPI) GetDestination(ctx context.Context, name string, opts destination.Options) (*destination.Destination, error) {
	f.lastName = name
	f.lastOpts = opts
	if f.getFn == nil {
		return nil, &destination.NotFoundError{Name: name}
	}
	return f.getFn(ctx, name, opts)
}

func (f *fakeAPI) GetAllDestinations(ctx context.Context, opts destination.Options) ([]*destination.Destination, error) {
	f.lastOpts = opts
	if f.getAllFn == nil {
		return nil, nil
	}
	return f.getAllFn(ctx, opts)
}

func testDestination(name string) *destination.Destination {
	return destination.New(map[string]string{
		destination.PropertyName:           name,
		destination.PropertyURL:            "https://" + name + ".example.com",
		destination.PropertyAuthentication: string(destination.BasicAuthentication),
	}, nil, nil)
}

func getDestinationRequest(t *testing.T, handler http.Handler, target string, configure func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle("GET /destinations/{name}", handler)

	r := httptest.NewRequest(http.MethodGet, target, nil)
	if configure != nil {
		configure(r)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

func TestHandleGetDestination(t *testing.T) {
	testhelpers.SetupLogger(t)

	t.Run("resolves and renders destination", func(t *testing.T) {
		api := &fakeAPI{
			getFn: func(ctx context.Context, name string, opts destination.Options) (*destination.Destination, error) {
				return testDestination(name), nil
			},
		}

		rec := getDestinationRequest(t, handleGetDestination(api), "/destinations/backend-api", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "backend-api", api.lastName)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		config := body["destinationConfiguration"].(map[string]any)
		assert.Equal(t, "backend-api", config["Name"])
		assert.Equal(t, "https://backend-api.example.com", config["URL"])
	})

	t.Run("passes strategies and properties through", func(t *testing.T) {
		api := &fakeAPI{
			getFn: func(ctx context.Context, name string, opts destination.Options) (*destination.Destination, error) {
				return testDestination(name), nil
			},
		}

		target := "/destinations/backend-api?retrievalStrategy=AlwaysProvider&tokenExchangeStrategy=LookupOnly&region=eu10"
		rec := getDestinationRequest(t, handleGetDestination(api), target, func(r *http.Request) {
			r.Header.Set(refreshTokenHeader, "refresh-me")
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, destination.AlwaysProvider, api.lastOpts.Retrieval)
		assert.Equal(t, destination.LookupOnly, api.lastOpts.Exchange)
		assert.Equal(t, "refresh-me", api.lastOpts.RefreshToken)
		assert.Equal(t, map[string]string{"region": "eu10"}, api.lastOpts.Properties)
	})

	t.Run("rejects unknown retrieval strategy", func(t *testing.T) {
		api := &fakeAPI{}

		rec := getDestinationRequest(t, handleGetDestination(api), "/destinations/backend-api?retrievalStrategy=Sideways", nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Error, "Sideways")
	})

	t.Run("maps not found", func(t *testing.T) {
		api := &fakeAPI{
			getFn: func(ctx context.Context, name string, opts destination.Options) (*destination.Destination, error) {
				return nil, &destination.NotFoundError{Name: name}
			},
		}

		rec := getDestinationRequest(t, handleGetDestination(api), "/destinations/missing", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "destination not found", body.Error)
	})

	t.Run("maps access denied", func(t *testing.T) {
		api := &fakeAPI{
			getFn: func(ctx context.Context, name string, opts destination.Options) (*destination.Destination, error) {
				return nil, &destination.AccessError{Reason: "no principal in calling context"}
			},
		}

		rec := getDestinationRequest(t, handleGetDestination(api), "/destinations/backend-api", nil)

		require.Equal(t, http.StatusForbidden, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "no principal in calling context", body.Error)
	})

	t.Run("maps unknown errors to internal server error", func(t *testing.T) {
		api := &fakeAPI{
			getFn: func(ctx context.Context, name string, opts destination.Options) (*destination.Destination, error) {
				return nil, errors.New("backend exploded")
			},
		}

		rec := getDestinationRequest(t, handleGetDestination(api), "/destinations/backend-api", nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		// internal details are not exposed to the caller
		assert.NotContains(t, body.Error, "exploded")
	})
}

func TestHandleGetAllDestinations(t *testing.T) {
	testhelpers.SetupLogger(t)

	t.Run("renders listing", func(t *testing.T) {
		api := &fakeAPI{
			getAllFn: func(ctx context.Context, opts destination.Options) ([]*destination.Destination, error) {
				return []*destination.Destination{
					testDestination("backend-api"),
					testDestination("reporting"),
				}, nil
			},
		}

		rec := httptest.NewRecorder()
		handleGetAllDestinations(api).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/destinations", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body, 2)
	})

	t.Run("empty listing renders an array", func(t *testing.T) {
		api := &fakeAPI{}

		rec := httptest.NewRecorder()
		handleGetAllDestinations(api).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/destinations", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", rec.Body.String())
	})

	t.Run("listing errors mapped", func(t *testing.T) {
		api := &fakeAPI{
			getAllFn: func(ctx context.Context, opts destination.Options) ([]*destination.Destination, error) {
				return nil, &destination.AccessError{Reason: "OnlySubscriber requested for provider tenant"}
			},
		}

		rec := httptest.NewRecorder()
		handleGetAllDestinations(api).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/destinations", nil))

		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rejects bad strategy parameter", func(t *testing.T) {
		api := &fakeAPI{}

		rec := httptest.NewRecorder()
		handleGetAllDestinations(api).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/destinations?tokenExchangeStrategy=maybe", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealthCheck().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestErrorStatus(t *testing.T) {
	status, message := errorStatus(&destination.NotFoundError{Name: "x"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "destination not found", message)

	status, message = errorStatus(errors.New("anything"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), message)
}
