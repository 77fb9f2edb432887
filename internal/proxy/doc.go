// Package proxy forwards Kubernetes API traffic from the renderer to the
// API server of the cluster a request is bound to.
//
// Requests under the proxy prefix (default "/api-kube") have the prefix
// stripped and are sent to the cluster's server using the transport
// client-go builds from its kubeconfig, so credentials never reach the
// renderer. Responses are flushed immediately so watch streams work.
//
// Every cluster gets its own circuit breaker and, when configured, its
// own token bucket. Failures are answered with small JSON bodies:
//
//	400  request not bound to a cluster
//	429  cluster rate limit exceeded
//	502  API server unreachable
//	503  circuit breaker open
package proxy
