// Package cluster tracks the Kubernetes clusters known to the process.
//
// Clusters are discovered from kubeconfig files, one per context, and are
// addressed by a stable ID derived from the kubeconfig path and context
// name. The Resolver binds an inbound request to a cluster using the
// "<id>.localhost" host convention or the X-Cluster-ID header.
package cluster
