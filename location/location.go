// Package location implements spec.md C8: longest-prefix matching of a
// request path against a virtual server's location rules, and the
// effective-policy merge between a matched location and its server.
package location

import (
	"strings"

	"github.com/webserv-go/webserv/config"
)

// Policy is the effective, fully-merged policy for a request after
// longest-prefix matching and was-set-flag-aware merging with the
// enclosing virtual server (spec.md §4.7).
type Policy struct {
	Root           string
	AllowedMethods map[config.Method]bool
	Redirect       *config.Redirect
	Autoindex      bool
	Indexes        []string
	UploadPath     string
	HasUploadPath  bool
	CGIPath        string
	HasCGIPath     bool

	// Matched is the location rule that produced this policy, or nil if
	// no rule matched and the server's own defaults were used verbatim.
	Matched *config.Location
}

var defaultMethods = map[config.Method]bool{config.GET: true, config.HEAD: true}

// Resolver holds one virtual server's locations, ready for repeated
// Resolve calls against many request paths.
type Resolver struct {
	server    *config.VirtualServer
	locations []config.Location
}

// NewResolver builds a Resolver over server's locations, preserving
// declaration order so that prefix-length ties break toward the
// earlier-declared rule (spec.md §4.7).
func NewResolver(server *config.VirtualServer) *Resolver {
	return &Resolver{server: server, locations: server.Locations}
}

// Resolve selects the longest-prefix-matching location for path and
// returns the fully merged effective Policy.
func (r *Resolver) Resolve(path string) Policy {
	best := -1
	bestLen := -1
	for i := range r.locations {
		prefix := r.locations[i].PathPrefix
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = i
		}
	}
	if best < 0 {
		return r.serverDefaults()
	}
	return r.merge(&r.locations[best])
}

func (r *Resolver) serverDefaults() Policy {
	return Policy{
		Root:           r.server.Root,
		AllowedMethods: defaultMethods,
		Autoindex:      r.server.Autoindex,
		Indexes:        r.server.Indexes,
	}
}

func (r *Resolver) merge(loc *config.Location) Policy {
	p := Policy{Matched: loc}

	if loc.Root.Set {
		p.Root = loc.Root.Value
	} else {
		p.Root = r.server.Root
	}

	if loc.AllowedMethods.Set {
		p.AllowedMethods = toMethodSet(loc.AllowedMethods.Value)
	} else {
		p.AllowedMethods = defaultMethods
	}

	if loc.Redirect.Set {
		rd := loc.Redirect.Value
		p.Redirect = &rd
	}

	if loc.Autoindex.Set {
		p.Autoindex = loc.Autoindex.Value
	} else {
		p.Autoindex = r.server.Autoindex
	}

	if loc.Indexes.Set {
		p.Indexes = loc.Indexes.Value
	} else {
		p.Indexes = r.server.Indexes
	}

	if loc.UploadPath.Set {
		p.UploadPath = loc.UploadPath.Value
		p.HasUploadPath = true
	}

	if loc.CGIPath.Set {
		p.CGIPath = loc.CGIPath.Value
		p.HasCGIPath = true
	}

	return p
}

func toMethodSet(mm []config.Method) map[config.Method]bool {
	s := make(map[config.Method]bool, len(mm))
	for _, m := range mm {
		s[m] = true
	}
	return s
}
