package routes

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/router"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// ClusterSource lists known clusters. *cluster.Store satisfies it.
type ClusterSource interface {
	Get(id string) (*cluster.Cluster, bool)
	List() []*cluster.Cluster
}

// Clusters serves the cluster list.
type Clusters struct {
	Source ClusterSource
}

// Routes implements router.Producer.
func (c *Clusters) Routes() []router.Route {
	return []router.Route{
		{Method: http.MethodGet, Path: "/clusters", Handler: c.list},
		{Method: http.MethodGet, Path: "/clusters/:id", Handler: c.get},
	}
}

func (c *Clusters) list(context.Context, *router.Request) (router.Response, error) {
	clusters := c.Source.List()
	out := make([]cluster.Summary, 0, len(clusters))
	for _, cl := range clusters {
		out = append(out, cl.Summary())
	}
	return router.Response{Body: out}, nil
}

func (c *Clusters) get(_ context.Context, req *router.Request) (router.Response, error) {
	id := req.Param("id")
	cl, ok := c.Source.Get(id)
	if !ok {
		return fail(http.StatusNotFound, fmt.Errorf("cluster %q: %w", id, util.ErrNotFound)), nil
	}
	return router.Response{Body: cl.Summary()}, nil
}
