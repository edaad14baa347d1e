package destination

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantgrid/destination-bridge/internal/testhelpers"
)

func TestGetAllDestinations_MergesListings(t *testing.T) {
	testhelpers.SetupLogger(t)

	client := &stubClient{
		instanceFn: func(behalf OnBehalfOf) ([]*Destination, error) {
			return []*Destination{
				New(map[string]string{PropertyName: "erp", PropertyURL: "https://instance.example.com"}, nil, nil),
				basicDestination("logging"),
			}, nil
		},
		subaccountFn: func(behalf OnBehalfOf) ([]*Destination, error) {
			return []*Destination{
				New(map[string]string{PropertyName: "erp", PropertyURL: "https://subaccount.example.com"}, nil, nil),
				basicDestination("crm"),
			}, nil
		},
	}
	s := newTestService(client, DefaultCacheSettings())
	defer s.Close()

	listing, err := s.GetAllDestinations(tenantContext("tenant-a"), Options{})
	require.NoError(t, err)
	require.Len(t, listing, 3)

	names := make(map[string]string, len(listing))
	for _, d := range listing {
		names[d.Name()] = d.URL()
	}

	// the instance-level definition shadows the subaccount one
	assert.Equal(t, "https://instance.example.com", names["erp"])
	assert.Contains(t, names, "logging")
	assert.Contains(t, names, "crm")
}

func TestGetAllDestinations_CachesPerTenant(t *testing.T) {
	testhelpers.SetupLogger(t)

	client := &stubClient{}
	s := newTestService(client, DefaultCacheSettings())
	defer s.Close()

	_, err := s.GetAllDestinations(tenantContext("tenant-a"), Options{})
	require.NoError(t, err)
	_, err = s.GetAllDestinations(tenantContext("tenant-a"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, client.listingCalls)

	_, err = s.GetAllDestinations(tenantContext("tenant-b"), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, client.listingCalls)
}

func TestGetAllDestinations_ProviderIdentity(t *testing.T) {
	testhelpers.SetupLogger(t)

	var behalfSeen OnBehalfOf
	client := &stubClient{
		instanceFn: func(behalf OnBehalfOf) ([]*Destination, error) {
			behalfSeen = behalf
			return nil, nil
		},
	}
	s := newTestService(client, DefaultCacheSettings())
	defer s.Close()

	_, err := s.GetAllDestinations(tenantContext("tenant-a"), Options{Retrieval: AlwaysProvider})
	require.NoError(t, err)
	assert.Equal(t, TechnicalUserProvider, behalfSeen)

	_, err = s.GetAllDestinations(tenantContext("tenant-b"), Options{})
	require.NoError(t, err)
	assert.Equal(t, TechnicalUserCurrentTenant, behalfSeen)
}

func TestGetAllDestinations_Errors(t *testing.T) {
	testhelpers.SetupLogger(t)

	t.Run("listing failure propagates and is not cached", func(t *testing.T) {
		listErr := errors.New("listing unavailable")
		client := &stubClient{
			instanceFn: func(behalf OnBehalfOf) ([]*Destination, error) {
				return nil, listErr
			},
		}
		s := newTestService(client, DefaultCacheSettings())
		defer s.Close()

		_, err := s.GetAllDestinations(tenantContext("tenant-a"), Options{})
		require.ErrorIs(t, err, listErr)

		_, err = s.GetAllDestinations(tenantContext("tenant-a"), Options{})
		require.ErrorIs(t, err, listErr)
		assert.Equal(t, 2, client.listingCalls)
	})

	t.Run("OnlySubscriber rejected on the provider tenant", func(t *testing.T) {
		client := &stubClient{}
		s := newTestService(client, DefaultCacheSettings())
		defer s.Close()

		_, err := s.GetAllDestinations(tenantContext("provider-tenant"), Options{Retrieval: OnlySubscriber})

		var accessErr *AccessError
		require.ErrorAs(t, err, &accessErr)
	})
}
