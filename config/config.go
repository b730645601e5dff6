// Package config holds the validated in-memory configuration structure
// spec.md §6 describes. Config-file lexing is explicitly out of scope;
// Load only decodes a JSON document into these types and validates it —
// see SPEC_FULL.md §1 for why JSON/encoding-stdlib rather than a pack
// config library.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/webserv-go/webserv/endpoint"
)

// Method is one of the four verbs this server understands.
type Method string

const (
	GET    Method = "GET"
	HEAD   Method = "HEAD"
	POST   Method = "POST"
	DELETE Method = "DELETE"
)

// Optional pairs a value with an explicit "was this field set" flag, so
// merging a Location's policy with its enclosing VirtualServer is
// unambiguous (spec.md §3). UnmarshalJSON only runs for keys present in
// the source document, which is exactly the semantics Set needs.
type Optional[T any] struct {
	Value T
	Set   bool
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Set = true
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

// Of constructs a set Optional, useful for tests and programmatic config.
func Of[T any](v T) Optional[T] { return Optional[T]{Value: v, Set: true} }

// Redirect is a location's configured redirect response.
type Redirect struct {
	Status int    `json:"status"`
	Target string `json:"target"`
}

// Location is one path-prefix-scoped policy override (spec.md C8).
type Location struct {
	PathPrefix     string                  `json:"path_prefix"`
	Root           Optional[string]        `json:"root,omitempty"`
	AllowedMethods Optional[[]Method]      `json:"allowed_methods,omitempty"`
	Redirect       Optional[Redirect]      `json:"redirect,omitempty"`
	Autoindex      Optional[bool]          `json:"autoindex,omitempty"`
	Indexes        Optional[[]string]      `json:"indexes,omitempty"`
	UploadPath     Optional[string]        `json:"upload_path,omitempty"`
	CGIPath        Optional[string]        `json:"cgi_path,omitempty"`
}

// EndpointSpec is the raw host/port pair as it appears in JSON; it is
// resolved into an endpoint.Endpoint during Validate.
type EndpointSpec struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// VirtualServer is one server block (spec.md C6 data model).
type VirtualServer struct {
	ServerNames       []string          `json:"server_names"`
	Endpoints         []EndpointSpec    `json:"endpoints"`
	Root              string            `json:"root"`
	Indexes           []string          `json:"indexes"`
	Autoindex         bool              `json:"autoindex"`
	ClientMaxBodySize int64             `json:"client_max_body_size"`
	KeepAlive         bool              `json:"keep_alive"`
	StatusPages       map[int]string    `json:"status_pages"`
	Locations         []Location        `json:"locations"`

	// ResolvedEndpoints is populated by Validate from Endpoints.
	ResolvedEndpoints []endpoint.Endpoint `json:"-"`
}

// Root is the top-level document: one or more virtual servers.
type Root struct {
	Servers []VirtualServer `json:"servers"`
}

// Load reads and JSON-decodes path, then validates the result.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var root Root
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := root.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &root, nil
}

// Validate checks structural invariants and resolves endpoint host/port
// pairs into endpoint.Endpoint values. It mutates ResolvedEndpoints on
// each VirtualServer.
func (r *Root) Validate() error {
	if len(r.Servers) == 0 {
		return fmt.Errorf("config: no servers defined")
	}
	for i := range r.Servers {
		s := &r.Servers[i]
		if s.Root == "" {
			return fmt.Errorf("config: server %d: root is required", i)
		}
		if len(s.Endpoints) == 0 {
			return fmt.Errorf("config: server %d: at least one endpoint is required", i)
		}
		if len(s.ServerNames) == 0 {
			s.ServerNames = []string{"_"}
		}
		s.ResolvedEndpoints = make([]endpoint.Endpoint, 0, len(s.Endpoints))
		for _, es := range s.Endpoints {
			ep, err := endpoint.Parse(es.Host, es.Port)
			if err != nil {
				return fmt.Errorf("config: server %d: %w", i, err)
			}
			s.ResolvedEndpoints = append(s.ResolvedEndpoints, ep)
		}
		for j := range s.Locations {
			loc := &s.Locations[j]
			if !strings.HasPrefix(loc.PathPrefix, "/") {
				return fmt.Errorf("config: server %d location %d: path_prefix must start with /", i, j)
			}
			if loc.AllowedMethods.Set {
				for _, m := range loc.AllowedMethods.Value {
					switch m {
					case GET, HEAD, POST, DELETE:
					default:
						return fmt.Errorf("config: server %d location %d: unknown method %q", i, j, m)
					}
				}
			}
			if loc.Redirect.Set {
				rd := loc.Redirect.Value
				if rd.Status < 300 || rd.Status > 399 {
					return fmt.Errorf("config: server %d location %d: redirect status must be 3xx", i, j)
				}
			}
		}
		for code, p := range s.StatusPages {
			if code < 100 || code > 599 {
				return fmt.Errorf("config: server %d: invalid status code %d", i, code)
			}
			_ = p
		}
	}
	return nil
}
