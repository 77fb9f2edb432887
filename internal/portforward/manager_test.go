package portforward

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

type clusterMap map[string]*cluster.Cluster

func (m clusterMap) Get(id string) (*cluster.Cluster, bool) {
	c, ok := m[id]
	return c, ok
}

type fakeSession struct {
	port int
	done chan struct{}
	once sync.Once
}

func (s *fakeSession) LocalPort() int        { return s.port }
func (s *fakeSession) Done() <-chan struct{} { return s.done }
func (s *fakeSession) Close()                { s.once.Do(func() { close(s.done) }) }

type dialCall struct {
	namespace  string
	pod        string
	remotePort int
	localPort  int
}

type fakeDialer struct {
	mu       sync.Mutex
	calls    []dialCall
	sessions []*fakeSession
	next     atomic.Int32
	err      error
}

func (d *fakeDialer) Dial(_ context.Context, _ *cluster.Cluster, namespace, pod string, remotePort, localPort int) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dialCall{namespace, pod, remotePort, localPort})
	if d.err != nil {
		return nil, d.err
	}
	port := localPort
	if port == 0 {
		port = 40000 + int(d.next.Add(1))
	}
	s := &fakeSession{port: port, done: make(chan struct{})}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) lastCall() dialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[len(d.calls)-1]
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func runningPod(name string, lbls map[string]string, ports ...corev1.ContainerPort) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default", Labels: lbls},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "app", Ports: ports}},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func newTestManager(t *testing.T, objects ...runtime.Object) (*Manager, *fakeDialer) {
	t.Helper()
	c := cluster.FromRESTConfig("c1", "dev", &rest.Config{Host: "https://10.0.0.1"}).
		WithClientset(fake.NewClientset(objects...))
	d := &fakeDialer{}
	return NewManager(clusterMap{"c1": c}, WithDialer(d)), d
}

func TestManager_StartPod(t *testing.T) {
	t.Parallel()

	m, d := newTestManager(t, runningPod("web-0", nil))
	key := Key{ClusterID: "c1", Namespace: "default", Kind: KindPod, Name: "web-0", Port: 8080}

	port, err := m.Start(context.Background(), key, 0)
	require.NoError(t, err)
	assert.Equal(t, 40001, port)
	assert.Equal(t, dialCall{"default", "web-0", 8080, 0}, d.lastCall())

	got, ok := m.Get(key)
	assert.True(t, ok)
	assert.Equal(t, port, got)

	again, err := m.Start(context.Background(), key, 0)
	require.NoError(t, err)
	assert.Equal(t, port, again)
	assert.Equal(t, 1, d.callCount())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.active))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.starts.WithLabelValues("pod", "ok")))
}

func TestManager_StartRequestedLocalPort(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, runningPod("web-0", nil))
	key := Key{ClusterID: "c1", Namespace: "default", Kind: KindPod, Name: "web-0", Port: 80}

	port, err := m.Start(context.Background(), key, 9090)
	require.NoError(t, err)
	assert.Equal(t, 9090, port)
}

func TestManager_StartService(t *testing.T) {
	t.Parallel()

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": "web"},
			Ports: []corev1.ServicePort{
				{Port: 80, TargetPort: intstr.FromString("http")},
				{Port: 443, TargetPort: intstr.FromInt32(8443)},
			},
		},
	}
	pending := runningPod("web-a", map[string]string{"app": "web"})
	pending.Status.Phase = corev1.PodPending
	other := runningPod("db-0", map[string]string{"app": "db"})
	ready := runningPod("web-b", map[string]string{"app": "web"}, corev1.ContainerPort{Name: "http", ContainerPort: 8080})

	m, d := newTestManager(t, svc, pending, other, ready)

	tests := []struct {
		port       int
		wantRemote int
	}{
		{port: 80, wantRemote: 8080},
		{port: 443, wantRemote: 8443},
		{port: 9000, wantRemote: 9000},
	}

	for _, tt := range tests {
		key := Key{ClusterID: "c1", Namespace: "default", Kind: KindService, Name: "web", Port: tt.port}
		_, err := m.Start(context.Background(), key, 0)
		require.NoError(t, err)
		call := d.lastCall()
		assert.Equal(t, "web-b", call.pod)
		assert.Equal(t, tt.wantRemote, call.remotePort)
	}

	forwards := m.List("c1")
	require.Len(t, forwards, 3)
	assert.Equal(t, 80, forwards[0].Port)
	assert.Equal(t, "web-b", forwards[0].Pod)
	assert.Equal(t, 8080, forwards[0].TargetPort)
	assert.Empty(t, m.List("other"))
}

func TestManager_StartErrors(t *testing.T) {
	t.Parallel()

	pending := runningPod("slow", nil)
	pending.Status.Phase = corev1.PodPending
	noSelector := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "ext", Namespace: "default"}}
	m, _ := newTestManager(t, pending, noSelector)

	tests := []struct {
		name    string
		key     Key
		wantErr error
	}{
		{
			name:    "invalid key",
			key:     Key{ClusterID: "c1", Namespace: "default", Kind: KindPod, Name: "x", Port: 0},
			wantErr: util.ErrInvalidInput,
		},
		{
			name:    "missing cluster id",
			key:     Key{Namespace: "default", Kind: KindPod, Name: "x", Port: 80},
			wantErr: util.ErrClusterRequired,
		},
		{
			name:    "unknown cluster",
			key:     Key{ClusterID: "zz", Namespace: "default", Kind: KindPod, Name: "x", Port: 80},
			wantErr: ErrUnknownCluster,
		},
		{
			name:    "pod not found",
			key:     Key{ClusterID: "c1", Namespace: "default", Kind: KindPod, Name: "missing", Port: 80},
			wantErr: util.ErrNotFound,
		},
		{
			name:    "pod not running",
			key:     Key{ClusterID: "c1", Namespace: "default", Kind: KindPod, Name: "slow", Port: 80},
			wantErr: ErrNoRunningPod,
		},
		{
			name:    "service without selector",
			key:     Key{ClusterID: "c1", Namespace: "default", Kind: KindService, Name: "ext", Port: 80},
			wantErr: ErrNoRunningPod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Start(context.Background(), tt.key, 0)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestManager_DialFailure(t *testing.T) {
	t.Parallel()

	m, d := newTestManager(t, runningPod("web-0", nil))
	d.err = errors.New("upgrade failed")
	key := Key{ClusterID: "c1", Namespace: "default", Kind: KindPod, Name: "web-0", Port: 80}

	_, err := m.Start(context.Background(), key, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrClusterUnavail)
	_, ok := m.Get(key)
	assert.False(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.metrics.starts.WithLabelValues("pod", "error")))
}

func TestManager_Stop(t *testing.T) {
	t.Parallel()

	m, d := newTestManager(t, runningPod("web-0", nil))
	key := Key{ClusterID: "c1", Namespace: "default", Kind: KindPod, Name: "web-0", Port: 80}

	_, err := m.Start(context.Background(), key, 0)
	require.NoError(t, err)

	require.NoError(t, m.Stop(key))
	_, ok := m.Get(key)
	assert.False(t, ok)
	assert.Empty(t, m.List("c1"))

	select {
	case <-d.sessions[0].done:
	default:
		t.Fatal("session was not closed")
	}

	assert.ErrorIs(t, m.Stop(key), util.ErrNotFound)
}

func TestManager_SessionEndsOnItsOwn(t *testing.T) {
	t.Parallel()

	m, d := newTestManager(t, runningPod("web-0", nil))
	key := Key{ClusterID: "c1", Namespace: "default", Kind: KindPod, Name: "web-0", Port: 80}

	_, err := m.Start(context.Background(), key, 0)
	require.NoError(t, err)

	d.sessions[0].Close()

	assert.Eventually(t, func() bool {
		return len(m.List("c1")) == 0
	}, time.Second, 5*time.Millisecond)

	_, err = m.Start(context.Background(), key, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, d.callCount())
}

func TestManager_StopClusterAndAll(t *testing.T) {
	t.Parallel()

	c1 := cluster.FromRESTConfig("c1", "one", &rest.Config{Host: "https://10.0.0.1"}).
		WithClientset(fake.NewClientset(runningPod("a", nil)))
	c2 := cluster.FromRESTConfig("c2", "two", &rest.Config{Host: "https://10.0.0.2"}).
		WithClientset(fake.NewClientset(runningPod("a", nil)))
	d := &fakeDialer{}
	m := NewManager(clusterMap{"c1": c1, "c2": c2}, WithDialer(d))

	for _, id := range []string{"c1", "c2"} {
		_, err := m.Start(context.Background(), Key{ClusterID: id, Namespace: "default", Kind: KindPod, Name: "a", Port: 80}, 0)
		require.NoError(t, err)
	}

	m.StopCluster("c1")
	assert.Empty(t, m.List("c1"))
	assert.Len(t, m.List("c2"), 1)

	m.StopAll()
	assert.Empty(t, m.List("c2"))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.metrics.active))
}

// gatedDialer blocks dials to one cluster until release is closed.
type gatedDialer struct {
	fakeDialer
	gated   string
	entered chan struct{}
	release chan struct{}
	blocked atomic.Int32
}

func (d *gatedDialer) Dial(ctx context.Context, c *cluster.Cluster, namespace, pod string, remotePort, localPort int) (Session, error) {
	if c.ID == d.gated {
		d.blocked.Add(1)
		d.entered <- struct{}{}
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.fakeDialer.Dial(ctx, c, namespace, pod, remotePort, localPort)
}

func TestManager_SlowClusterDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	slow := cluster.FromRESTConfig("slow", "slow", &rest.Config{Host: "https://10.0.0.1"}).
		WithClientset(fake.NewClientset(runningPod("a", nil)))
	fast := cluster.FromRESTConfig("fast", "fast", &rest.Config{Host: "https://10.0.0.2"}).
		WithClientset(fake.NewClientset(runningPod("a", nil)))
	d := &gatedDialer{gated: "slow", entered: make(chan struct{}, 2), release: make(chan struct{})}
	m := NewManager(clusterMap{"slow": slow, "fast": fast}, WithDialer(d))

	slowKey := Key{ClusterID: "slow", Namespace: "default", Kind: KindPod, Name: "a", Port: 80}

	var wg sync.WaitGroup
	ports := make([]int, 2)
	for i := range ports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			port, err := m.Start(context.Background(), slowKey, 0)
			assert.NoError(t, err)
			ports[i] = port
		}(i)
	}
	<-d.entered

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := m.Start(ctx, Key{ClusterID: "fast", Namespace: "default", Kind: KindPod, Name: "a", Port: 80}, 0)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(d.release)
	wg.Wait()

	assert.Equal(t, int32(1), d.blocked.Load(), "concurrent starts of one key dial once")
	assert.Equal(t, ports[0], ports[1])
	assert.Len(t, m.List("slow"), 1)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "pod", want: KindPod},
		{in: "pods", want: KindPod},
		{in: "service", want: KindService},
		{in: "svc", want: KindService},
		{in: "deployment", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, util.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
