package portforward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// Kind is the type of resource a forward targets.
type Kind string

// Supported kinds.
const (
	KindPod     Kind = "pod"
	KindService Kind = "service"
)

// ParseKind accepts the singular and plural resource names.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "pod", "pods", "po":
		return KindPod, nil
	case "service", "services", "svc":
		return KindService, nil
	default:
		return "", fmt.Errorf("%w: unsupported resource type %q", util.ErrInvalidInput, s)
	}
}

// Errors returned by the manager.
var (
	ErrNoRunningPod   = errors.New("no running pod")
	ErrUnknownCluster = errors.New("unknown cluster")
)

// Key identifies a forward.
type Key struct {
	ClusterID string
	Namespace string
	Kind      Kind
	Name      string
	Port      int
}

// Validate checks that every field is usable.
func (k Key) Validate() error {
	switch {
	case k.ClusterID == "":
		return util.ErrClusterRequired
	case k.Namespace == "" || k.Name == "":
		return fmt.Errorf("%w: namespace and name are required", util.ErrInvalidInput)
	case k.Kind != KindPod && k.Kind != KindService:
		return fmt.Errorf("%w: unsupported kind %q", util.ErrInvalidInput, k.Kind)
	case k.Port < 1 || k.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", util.ErrInvalidInput, k.Port)
	}
	return nil
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s:%d", k.ClusterID, k.Namespace, k.Kind, k.Name, k.Port)
}

// Forward describes an active forward.
type Forward struct {
	ClusterID  string    `json:"clusterId"`
	Namespace  string    `json:"namespace"`
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`
	Port       int       `json:"port"`
	LocalPort  int       `json:"forwardPort"`
	Pod        string    `json:"pod"`
	TargetPort int       `json:"targetPort"`
	StartedAt  time.Time `json:"startedAt"`
}

// Session is an open tunnel.
type Session interface {
	// LocalPort is the bound local port.
	LocalPort() int
	// Done is closed when the tunnel ends for any reason.
	Done() <-chan struct{}
	// Close stops the tunnel. It is safe to call more than once.
	Close()
}

// Dialer opens a tunnel from localPort to remotePort of a pod. A zero
// localPort picks a free port.
type Dialer interface {
	Dial(ctx context.Context, c *cluster.Cluster, namespace, pod string, remotePort, localPort int) (Session, error)
}

// ClusterLookup finds clusters by ID. *cluster.Store satisfies it.
type ClusterLookup interface {
	Get(id string) (*cluster.Cluster, bool)
}
