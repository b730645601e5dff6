package vhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webserv-go/webserv/config"
	"github.com/webserv-go/webserv/endpoint"
)

func mustEndpoint(t *testing.T, host string, port int) endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.Parse(host, port)
	require.NoError(t, err)
	return ep
}

func TestResolveExactServerName(t *testing.T) {
	ep := mustEndpoint(t, "0.0.0.0", 8080)
	def := &config.VirtualServer{ServerNames: []string{"_"}, Root: "/default", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	api := &config.VirtualServer{ServerNames: []string{"api.example.com"}, Root: "/api", ResolvedEndpoints: []endpoint.Endpoint{ep}}

	m := Build([]*config.VirtualServer{def, api})

	got, ok := m.Resolve(ep, "api.example.com")
	require.True(t, ok)
	assert.Equal(t, "/api", got.Root)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	ep := mustEndpoint(t, "0.0.0.0", 80)
	api := &config.VirtualServer{ServerNames: []string{"Api.Example.COM"}, Root: "/api", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	m := Build([]*config.VirtualServer{api})

	got, ok := m.Resolve(ep, "api.example.com")
	require.True(t, ok)
	assert.Equal(t, "/api", got.Root)
}

func TestResolveStripsPortFromHostHeader(t *testing.T) {
	ep := mustEndpoint(t, "0.0.0.0", 8080)
	api := &config.VirtualServer{ServerNames: []string{"api.example.com"}, Root: "/api", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	m := Build([]*config.VirtualServer{api})

	got, ok := m.Resolve(ep, "api.example.com:8080")
	require.True(t, ok)
	assert.Equal(t, "/api", got.Root)
}

func TestResolveFallsBackToDefaultOnNoMatch(t *testing.T) {
	ep := mustEndpoint(t, "0.0.0.0", 8080)
	def := &config.VirtualServer{ServerNames: []string{"main.example.com"}, Root: "/default", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	other := &config.VirtualServer{ServerNames: []string{"other.example.com"}, Root: "/other", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	m := Build([]*config.VirtualServer{def, other})

	got, ok := m.Resolve(ep, "unknown.example.com")
	require.True(t, ok)
	assert.Equal(t, "/default", got.Root, "no name matches, so the first-declared server for the endpoint wins")
}

func TestResolveWildcardServerName(t *testing.T) {
	ep := mustEndpoint(t, "0.0.0.0", 8080)
	def := &config.VirtualServer{ServerNames: []string{"main.example.com"}, Root: "/default", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	catchAll := &config.VirtualServer{ServerNames: []string{"_"}, Root: "/catchall", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	m := Build([]*config.VirtualServer{def, catchAll})

	got, ok := m.Resolve(ep, "unknown.example.com")
	require.True(t, ok)
	assert.Equal(t, "/catchall", got.Root)
}

func TestResolveUnknownEndpoint(t *testing.T) {
	ep := mustEndpoint(t, "0.0.0.0", 8080)
	other := mustEndpoint(t, "0.0.0.0", 9090)
	def := &config.VirtualServer{ServerNames: []string{"_"}, Root: "/default", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	m := Build([]*config.VirtualServer{def})

	_, ok := m.Resolve(other, "anything")
	assert.False(t, ok)
}

func TestEndpointsListsEachEndpointOnce(t *testing.T) {
	ep1 := mustEndpoint(t, "0.0.0.0", 8080)
	ep2 := mustEndpoint(t, "0.0.0.0", 9090)
	s1 := &config.VirtualServer{ServerNames: []string{"_"}, Root: "/a", ResolvedEndpoints: []endpoint.Endpoint{ep1, ep2}}
	s2 := &config.VirtualServer{ServerNames: []string{"b.example.com"}, Root: "/b", ResolvedEndpoints: []endpoint.Endpoint{ep1}}
	m := Build([]*config.VirtualServer{s1, s2})

	eps := m.Endpoints()
	assert.Len(t, eps, 2)
}

func TestMultipleServerNamesOnOneServer(t *testing.T) {
	ep := mustEndpoint(t, "0.0.0.0", 8080)
	s := &config.VirtualServer{ServerNames: []string{"a.example.com", "b.example.com"}, Root: "/ab", ResolvedEndpoints: []endpoint.Endpoint{ep}}
	m := Build([]*config.VirtualServer{s})

	got, ok := m.Resolve(ep, "b.example.com")
	require.True(t, ok)
	assert.Equal(t, "/ab", got.Root)
}
