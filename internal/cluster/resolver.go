package cluster

import (
	"net"
	"net/http"
	"strings"
)

// HeaderClusterID carries the cluster ID when the host does not.
const HeaderClusterID = "X-Cluster-ID"

const localhostSuffix = ".localhost"

// Resolver binds inbound requests to clusters.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver backed by store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the cluster addressed by r, or nil.
func (res *Resolver) Resolve(r *http.Request) *Cluster {
	id := IDFromRequest(r)
	if id == "" {
		return nil
	}
	c, ok := res.store.Get(id)
	if !ok {
		return nil
	}
	return c
}

// IDFromRequest extracts the cluster ID from the Host's first label
// ("<id>.localhost") or, failing that, from the X-Cluster-ID header.
func IDFromRequest(r *http.Request) string {
	if id := IDFromHost(r.Host); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(HeaderClusterID))
}

// IDFromHost returns the first label of a "<id>.localhost[:port]" host.
func IDFromHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	if !strings.HasSuffix(host, localhostSuffix) {
		return ""
	}
	label, _, _ := strings.Cut(strings.TrimSuffix(host, localhostSuffix), ".")
	return label
}
