// Package server runs the clusterdesk HTTP listener.
//
// Every request passes through request ID, cluster binding, panic
// recovery, access logging, tracing, metrics and body limiting before it
// is dispatched. Dispatch tries, in order, the metrics endpoint, the
// Kubernetes API proxy, the route table and the static assets, and
// answers a JSON 404 when none of them takes the request.
package server
