package routes

import (
	"context"
	"net/http"

	"github.com/vyrodovalexey/clusterdesk/internal/router"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

// Readiness reports whether the process can serve cluster traffic.
type Readiness interface {
	Ready() bool
}

// System serves the version and health endpoints.
type System struct {
	Build     BuildInfo
	Readiness Readiness
}

type statusBody struct {
	Status string `json:"status"`
}

// Routes implements router.Producer.
func (s *System) Routes() []router.Route {
	return []router.Route{
		{Method: http.MethodGet, Path: "/version", Handler: s.version},
		{Method: http.MethodGet, Path: "/healthz", Handler: s.healthz},
		{Method: http.MethodGet, Path: "/readyz", Handler: s.readyz},
	}
}

func (s *System) version(context.Context, *router.Request) (router.Response, error) {
	return router.Response{Body: s.Build}, nil
}

func (s *System) healthz(context.Context, *router.Request) (router.Response, error) {
	return router.Response{Body: statusBody{Status: "ok"}}, nil
}

func (s *System) readyz(context.Context, *router.Request) (router.Response, error) {
	if s.Readiness != nil && !s.Readiness.Ready() {
		return router.Response{
			Body:       statusBody{Status: "not ready"},
			StatusCode: http.StatusServiceUnavailable,
		}, nil
	}
	return router.Response{Body: statusBody{Status: "ready"}}, nil
}
