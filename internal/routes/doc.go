// Package routes holds the route producers registered with the router at
// startup: version and health, the cluster list, service account
// kubeconfig export and port-forwarding.
package routes
