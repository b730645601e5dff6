// Package vhost implements spec.md C6: grouping virtual servers by the
// endpoints they bind, and resolving (endpoint, Host header) to exactly
// one virtual server.
//
// Per-endpoint server-name lookup reuses the teacher's
// container/strmap.StrMap[V] (a GC-friendly read-only string map) for
// the common case of many server names sharing one endpoint, the same
// way it's used elsewhere in the pack for read-mostly string lookups.
package vhost

import (
	"net"
	"strings"

	"github.com/webserv-go/webserv/container/strmap"

	"github.com/webserv-go/webserv/config"
	"github.com/webserv-go/webserv/endpoint"
)

const wildcardName = "_"

type entry struct {
	servers     []*config.VirtualServer
	names       *strmap.StrMap[int]
	wildcardIdx int
}

// Map groups virtual servers by endpoint and resolves requests to one of
// them.
type Map struct {
	order   []endpoint.Endpoint
	entries map[endpoint.Endpoint]*entry
}

// Build groups servers by each of their bound endpoints. The first
// server seen for a given endpoint becomes that endpoint's default
// (spec.md §4.5).
func Build(servers []*config.VirtualServer) *Map {
	m := &Map{entries: make(map[endpoint.Endpoint]*entry)}
	for _, s := range servers {
		for _, ep := range s.ResolvedEndpoints {
			e, ok := m.entries[ep]
			if !ok {
				e = &entry{wildcardIdx: -1}
				m.entries[ep] = e
				m.order = append(m.order, ep)
			}
			idx := len(e.servers)
			e.servers = append(e.servers, s)
			var named []string
			for _, name := range s.ServerNames {
				lname := strings.ToLower(name)
				if lname == wildcardName {
					if e.wildcardIdx < 0 {
						e.wildcardIdx = idx
					}
					continue
				}
				named = append(named, lname)
			}
			if len(named) > 0 {
				if e.names == nil {
					e.names = strmap.New[int]()
				}
				ids := make([]int, len(named))
				for i := range ids {
					ids[i] = idx
				}
				// StrMap is load-once; merge by rebuilding from the union
				// of previously loaded names and this server's names.
				e.names = rebuildNames(e.names, named, ids)
			}
		}
	}
	return m
}

// rebuildNames merges newNames/newIdx into an existing StrMap, since
// StrMap's Load* calls replace rather than append.
func rebuildNames(existing *strmap.StrMap[int], newNames []string, newIdx []int) *strmap.StrMap[int] {
	allNames := make([]string, 0, existing.Len()+len(newNames))
	allIdx := make([]int, 0, existing.Len()+len(newNames))
	for i := 0; i < existing.Len(); i++ {
		k, v := existing.Item(i)
		allNames = append(allNames, k)
		allIdx = append(allIdx, v)
	}
	allNames = append(allNames, newNames...)
	allIdx = append(allIdx, newIdx...)
	return strmap.NewFromSlice[int](allNames, allIdx)
}

// Endpoints returns every distinct endpoint that needs a listening
// socket, in first-seen order.
func (m *Map) Endpoints() []endpoint.Endpoint {
	return m.order
}

// Resolve picks the virtual server for ep and the request's Host header,
// per spec.md §4.5: exact case-insensitive server-name match first, then
// a spec declaring the wildcard name "_", then the endpoint's default
// (first-declared) server.
func (m *Map) Resolve(ep endpoint.Endpoint, hostHeader string) (*config.VirtualServer, bool) {
	e, ok := m.entries[ep]
	if !ok || len(e.servers) == 0 {
		return nil, false
	}
	host := stripPort(hostHeader)
	if e.names != nil {
		if idx, ok := e.names.Get(host); ok {
			return e.servers[idx], true
		}
	}
	if e.wildcardIdx >= 0 {
		return e.servers[e.wildcardIdx], true
	}
	return e.servers[0], true
}

func stripPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}
