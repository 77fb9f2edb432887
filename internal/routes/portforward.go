package routes

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/vyrodovalexey/clusterdesk/internal/portforward"
	"github.com/vyrodovalexey/clusterdesk/internal/router"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// Forwarder is the port-forward manager as seen by the routes.
type Forwarder interface {
	Start(ctx context.Context, key portforward.Key, forwardPort int) (int, error)
	Get(key portforward.Key) (int, bool)
	Stop(key portforward.Key) error
	List(clusterID string) []portforward.Forward
}

// PortForward serves the port-forward endpoints.
type PortForward struct {
	Manager Forwarder
}

type portBody struct {
	Port *int `json:"port"`
}

const portForwardPath = "/pods/port-forward/:namespace/:resourceType/:resourceName"

// Routes implements router.Producer.
func (p *PortForward) Routes() []router.Route {
	return []router.Route{
		{Method: http.MethodPost, Path: portForwardPath, Handler: p.start},
		{Method: http.MethodGet, Path: portForwardPath, Handler: p.get},
		{Method: http.MethodDelete, Path: portForwardPath, Handler: p.stop},
		{Method: http.MethodGet, Path: "/pods/port-forwards", Handler: p.list},
	}
}

func (p *PortForward) start(ctx context.Context, req *router.Request) (router.Response, error) {
	key, resp, ok := forwardKey(req)
	if !ok {
		return resp, nil
	}

	forwardPort := 0
	if v := req.Query.Get("forwardPort"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 65535 {
			return fail(http.StatusBadRequest, fmt.Errorf("%w: forwardPort must be a port number", util.ErrInvalidInput)), nil
		}
		forwardPort = n
	}

	port, err := p.Manager.Start(ctx, key, forwardPort)
	if err != nil {
		return fail(0, err), nil
	}
	return router.Response{Body: portBody{Port: &port}}, nil
}

func (p *PortForward) get(_ context.Context, req *router.Request) (router.Response, error) {
	key, resp, ok := forwardKey(req)
	if !ok {
		return resp, nil
	}

	port, found := p.Manager.Get(key)
	if !found {
		return router.Response{Body: portBody{}}, nil
	}
	return router.Response{Body: portBody{Port: &port}}, nil
}

func (p *PortForward) stop(_ context.Context, req *router.Request) (router.Response, error) {
	key, resp, ok := forwardKey(req)
	if !ok {
		return resp, nil
	}

	if err := p.Manager.Stop(key); err != nil {
		return fail(0, err), nil
	}
	return router.Response{Body: struct{}{}}, nil
}

func (p *PortForward) list(_ context.Context, req *router.Request) (router.Response, error) {
	if req.Cluster == nil {
		return clusterRequired(), nil
	}
	return router.Response{Body: p.Manager.List(req.Cluster.ID)}, nil
}

// forwardKey builds the key addressed by req. When ok is false, resp is
// the error response to send.
func forwardKey(req *router.Request) (key portforward.Key, resp router.Response, ok bool) {
	if req.Cluster == nil {
		return key, clusterRequired(), false
	}

	kind, err := portforward.ParseKind(req.Param("resourceType"))
	if err != nil {
		return key, fail(http.StatusBadRequest, err), false
	}

	raw := req.Query.Get("port")
	if raw == "" {
		return key, fail(http.StatusBadRequest, fmt.Errorf("%w: port is required", util.ErrInvalidInput)), false
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return key, fail(http.StatusBadRequest, fmt.Errorf("%w: port must be numeric", util.ErrInvalidInput)), false
	}
	if port < 1 || port > 65535 {
		return key, fail(http.StatusBadRequest, fmt.Errorf("%w: port %d out of range", util.ErrInvalidInput, port)), false
	}

	return portforward.Key{
		ClusterID: req.Cluster.ID,
		Namespace: req.Param("namespace"),
		Kind:      kind,
		Name:      req.Param("resourceName"),
		Port:      port,
	}, router.Response{}, true
}
