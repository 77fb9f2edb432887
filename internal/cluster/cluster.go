package cluster

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// idNamespace seeds the name-based UUIDs used as cluster IDs.
var idNamespace = uuid.MustParse("6f1f7f0e-3c1b-4d8e-9a57-4b1f2c3d5e60")

// StableID returns the cluster ID for a context in a kubeconfig file.
func StableID(kubeconfigPath, contextName string) string {
	return uuid.NewSHA1(idNamespace, []byte(kubeconfigPath+"\x00"+contextName)).String()
}

// Cluster is one kubeconfig context. The REST config and clientset are
// built lazily on first use and cached for the lifetime of the value.
type Cluster struct {
	ID             string
	Name           string
	ContextName    string
	KubeconfigPath string
	Server         string
	Namespace      string

	fingerprint string
	proxyURL    *url.URL

	restOnce   sync.Once
	restConfig *rest.Config
	restErr    error

	clientOnce sync.Once
	clientset  kubernetes.Interface
	clientErr  error
}

// FromRESTConfig builds a cluster around an existing REST config.
func FromRESTConfig(id, name string, cfg *rest.Config) *Cluster {
	c := &Cluster{
		ID:          id,
		Name:        name,
		ContextName: name,
		Server:      cfg.Host,
		restConfig:  cfg,
	}
	c.restOnce.Do(func() {})
	return c
}

// WithClientset overrides the clientset, mainly for tests using the fake
// clientset. It must be called before the cluster is shared.
func (c *Cluster) WithClientset(cs kubernetes.Interface) *Cluster {
	c.clientset = cs
	c.clientOnce.Do(func() {})
	return c
}

// WithProxyURL routes all traffic to the cluster through the HTTP(S) proxy
// at u. It must be called before the cluster is shared.
func (c *Cluster) WithProxyURL(u *url.URL) *Cluster {
	c.proxyURL = u
	return c
}

// RESTConfig returns a copy of the REST config for this context. When a
// proxy URL is set it replaces any proxy from the kubeconfig, so API
// calls, the kube proxy and port-forward streams all use it.
func (c *Cluster) RESTConfig() (*rest.Config, error) {
	c.restOnce.Do(func() {
		loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: c.KubeconfigPath},
			&clientcmd.ConfigOverrides{CurrentContext: c.ContextName},
		)
		cfg, err := loader.ClientConfig()
		if err != nil {
			c.restErr = fmt.Errorf("building rest config for context %q: %w", c.ContextName, err)
			return
		}
		c.restConfig = cfg
	})
	if c.restErr != nil {
		return nil, c.restErr
	}
	cfg := rest.CopyConfig(c.restConfig)
	if c.proxyURL != nil {
		cfg.Proxy = http.ProxyURL(c.proxyURL)
	}
	return cfg, nil
}

// Clientset returns a typed clientset for the cluster.
func (c *Cluster) Clientset() (kubernetes.Interface, error) {
	c.clientOnce.Do(func() {
		cfg, err := c.RESTConfig()
		if err != nil {
			c.clientErr = err
			return
		}
		c.clientset, c.clientErr = kubernetes.NewForConfig(cfg)
	})
	return c.clientset, c.clientErr
}

// Summary is the JSON view of a cluster returned to the renderer.
type Summary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Context    string `json:"context"`
	Server     string `json:"server"`
	Namespace  string `json:"namespace,omitempty"`
	Kubeconfig string `json:"kubeconfig,omitempty"`
}

// Summary returns the renderer-facing view of c.
func (c *Cluster) Summary() Summary {
	return Summary{
		ID:         c.ID,
		Name:       c.Name,
		Context:    c.ContextName,
		Server:     c.Server,
		Namespace:  c.Namespace,
		Kubeconfig: c.KubeconfigPath,
	}
}
