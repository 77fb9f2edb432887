// Package portforward keeps local port forwards to pods and services.
//
// A forward is identified by a Key (cluster, namespace, kind, name and
// remote port). Services are resolved to one running pod behind their
// selector at start time. The actual tunnel is opened by a Dialer; the
// default SPDYDialer uses client-go's portforward package.
package portforward
