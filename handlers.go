package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tenantgrid/destination-bridge/internal/audit"
	"github.com/tenantgrid/destination-bridge/internal/destination"
	"github.com/tenantgrid/destination-bridge/internal/tenancy"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// destinationAPI is the resolution surface the handlers require.
type destinationAPI interface {
	GetDestination(ctx context.Context, name string, opts destination.Options) (*destination.Destination, error)
	GetAllDestinations(ctx context.Context, opts destination.Options) ([]*destination.Destination, error)
}

const refreshTokenHeader = "X-Refresh-Token"

// requestOptions builds resolution options from the request's query
// parameters and headers. Query parameters other than the strategy selectors
// are forwarded to the destination service as additional properties.
func requestOptions(r *http.Request) (destination.Options, error) {
	query := r.URL.Query()

	retrieval, err := destination.ParseRetrievalStrategy(query.Get("retrievalStrategy"))
	if err != nil {
		return destination.Options{}, err
	}

	exchange, err := destination.ParseTokenExchangeStrategy(query.Get("tokenExchangeStrategy"))
	if err != nil {
		return destination.Options{}, err
	}

	var properties map[string]string
	for key, values := range query {
		if key == "retrievalStrategy" || key == "tokenExchangeStrategy" {
			continue
		}
		if properties == nil {
			properties = make(map[string]string)
		}
		properties[key] = values[0]
	}

	return destination.Options{
		Retrieval:    retrieval,
		Exchange:     exchange,
		RefreshToken: r.Header.Get(refreshTokenHeader),
		Properties:   properties,
	}, nil
}

func auditIdentity(ctx context.Context, opts destination.Options) {
	entry := audit.Log(ctx)

	if tenant, ok := tenancy.TenantFromContext(ctx); ok {
		entry.TenantID = tenant.ID
		entry.Subdomain = tenant.Subdomain
	}
	if principal, ok := tenancy.PrincipalFromContext(ctx); ok {
		entry.PrincipalName = principal.Name
		entry.Origin = principal.Origin
	}
	entry.RetrievalStrategy = string(opts.Retrieval)
	entry.ExchangeStrategy = string(opts.Exchange)
}

func handleGetDestination(api destinationAPI) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		ctx := r.Context()
		name := r.PathValue("name")

		opts, err := requestOptions(r)
		if err != nil {
			log.Ctx(ctx).Info().Msgf("invalid request parameters: %v", err)
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		auditIdentity(ctx, opts)
		entry := audit.Log(ctx)
		entry.Destination = name

		dest, err := api.GetDestination(ctx, name, opts)
		if err != nil {
			status, message := errorStatus(err)
			entry.Error = err.Error()
			log.Ctx(ctx).Info().Msgf("destination resolution failed: %v", err)
			writeJSONError(w, status, message)
			return
		}

		entry.Authentication = string(dest.Authentication())

		writeJSON(w, dest)
	})
}

func handleGetAllDestinations(api destinationAPI) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		ctx := r.Context()

		opts, err := requestOptions(r)
		if err != nil {
			log.Ctx(ctx).Info().Msgf("invalid request parameters: %v", err)
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		auditIdentity(ctx, opts)

		destinations, err := api.GetAllDestinations(ctx, opts)
		if err != nil {
			status, message := errorStatus(err)
			audit.Log(ctx).Error = err.Error()
			log.Ctx(ctx).Info().Msgf("destination listing failed: %v", err)
			writeJSONError(w, status, message)
			return
		}

		audit.Log(ctx).ListedDestinations = len(destinations)

		// render an empty array rather than null for an empty listing
		if destinations == nil {
			destinations = []*destination.Destination{}
		}

		writeJSON(w, destinations)
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, payload any) {
	marshalled, err := json.Marshal(payload)
	if err != nil {
		requestError(w, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(marshalled); err != nil {
		// record failure to log: trying to respond to the client at this
		// point will likely fail
		log.Info().Msgf("failed to write response: %v", err)
	}
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON error response: %v", err)
	}
}

// errorStatus extracts HTTP status code and message from an error.
// Returns (StatusInternalServerError, StatusText) for errors that don't implement HTTPStatuser.
func errorStatus(err error) (int, string) {
	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		return statuser.Status()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
