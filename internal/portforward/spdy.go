package portforward

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"

	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// SPDYDialer opens tunnels through the API server's pod portforward
// subresource.
type SPDYDialer struct {
	Logger observability.Logger

	// Address is the local bind address. Defaults to 127.0.0.1.
	Address string
}

// Dial implements Dialer.
func (d *SPDYDialer) Dial(
	ctx context.Context,
	c *cluster.Cluster,
	namespace, pod string,
	remotePort, localPort int,
) (Session, error) {
	cfg, err := c.RESTConfig()
	if err != nil {
		return nil, err
	}
	cs, err := c.Clientset()
	if err != nil {
		return nil, err
	}

	transport, upgrader, err := spdy.RoundTripperFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("building spdy transport: %w", err)
	}

	reqURL := cs.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("portforward").
		URL()
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

	addr := d.Address
	if addr == "" {
		addr = "127.0.0.1"
	}

	logger := d.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.With(
		observability.String("cluster_id", c.ID),
		observability.String("pod", namespace+"/"+pod),
	)

	stopCh := make(chan struct{})
	readyCh := make(chan struct{})
	fw, err := portforward.NewOnAddresses(
		dialer,
		[]string{addr},
		[]string{fmt.Sprintf("%d:%d", localPort, remotePort)},
		stopCh,
		readyCh,
		&logWriter{logger: logger},
		&logWriter{logger: logger, warn: true},
	)
	if err != nil {
		return nil, fmt.Errorf("creating port forwarder: %w", err)
	}

	s := &spdySession{stop: stopCh, done: make(chan struct{})}
	errCh := make(chan error, 1)
	go func() {
		defer close(s.done)
		errCh <- fw.ForwardPorts()
	}()

	select {
	case <-readyCh:
	case err := <-errCh:
		return nil, fmt.Errorf("forwarding ports: %w", err)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	ports, err := fw.GetPorts()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("reading forwarded ports: %w", err)
	}
	if len(ports) == 0 {
		s.Close()
		return nil, fmt.Errorf("no ports forwarded for %s/%s", namespace, pod)
	}
	s.local = int(ports[0].Local)

	return s, nil
}

type spdySession struct {
	local int
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (s *spdySession) LocalPort() int        { return s.local }
func (s *spdySession) Done() <-chan struct{} { return s.done }

func (s *spdySession) Close() {
	s.once.Do(func() { close(s.stop) })
}

// logWriter adapts the forwarder's output streams to the logger.
type logWriter struct {
	logger observability.Logger
	warn   bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if w.warn {
			w.logger.Warn("port-forward", observability.String("output", string(line)))
		} else {
			w.logger.Debug("port-forward", observability.String("output", string(line)))
		}
	}
	return len(p), nil
}
