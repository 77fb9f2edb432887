package cluster

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeKubeconfig(t, dir, "config", testKubeconfig)

	s := NewStore()
	assert.False(t, s.Ready())

	require.NoError(t, s.Load(path))
	assert.True(t, s.Ready())

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha-admin", list[0].Name)
	assert.Equal(t, "beta-admin", list[1].Name)
	assert.Equal(t, "https://alpha.example:6443", list[0].Server)
	assert.Equal(t, "kube-system", list[0].Namespace)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)

	got, ok := s.Get(StableID(abs, "beta-admin"))
	require.True(t, ok)
	assert.Equal(t, "https://beta.example:6443", got.Server)
}

func TestStore_Load_CredentialChangeReplacesCluster(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeKubeconfig(t, dir, "config", testKubeconfig)

	s := NewStore()
	require.NoError(t, s.Load(path))
	before := s.List()

	require.NoError(t, s.Load(path))
	assert.Same(t, before[0], s.List()[0], "reloading identical content keeps the cluster")

	writeKubeconfig(t, dir, "config", strings.ReplaceAll(testKubeconfig, "secret-token", "rotated-token"))
	require.NoError(t, s.Load(path))

	after := s.List()
	require.Len(t, after, 2)
	assert.NotSame(t, before[0], after[0])
	assert.Equal(t, before[0].ID, after[0].ID)
}

func TestStore_Load_PartialFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writeKubeconfig(t, dir, "good", testKubeconfig)
	bad := writeKubeconfig(t, dir, "bad", "clusters: [unterminated")

	s := NewStore()
	err := s.Load(good, bad, filepath.Join(dir, "missing"))

	require.Error(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestStore_Load_FailedFileKeepsPreviousClusters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeKubeconfig(t, dir, "config", testKubeconfig)

	s := NewStore()
	var removed []string
	s.OnRemove(func(id string) { removed = append(removed, id) })

	require.NoError(t, s.Load(path))
	before := s.List()
	require.Len(t, before, 2)

	writeKubeconfig(t, dir, "config", "clusters: [unterminated")
	require.Error(t, s.Load(path))

	after := s.List()
	require.Len(t, after, 2)
	assert.Same(t, before[0], after[0])
	assert.Same(t, before[1], after[1])
	assert.Empty(t, removed)
}

func TestStore_WithProxyURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeKubeconfig(t, dir, "config", testKubeconfig)

	proxyURL, err := url.Parse("http://proxy.corp:3128")
	require.NoError(t, err)

	s := NewStore(WithProxyURL(proxyURL))
	require.NoError(t, s.Load(path))

	for _, c := range s.List() {
		cfg, err := c.RESTConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg.Proxy, c.Name)

		got, err := cfg.Proxy(&http.Request{URL: &url.URL{Scheme: "https", Host: "alpha.example:6443"}})
		require.NoError(t, err)
		assert.Equal(t, "http://proxy.corp:3128", got.String())
	}
}

func TestStore_Replace_KeepsUnchangedAndNotifiesRemoval(t *testing.T) {
	t.Parallel()

	s := NewStore()

	var (
		mu      sync.Mutex
		removed []string
	)
	s.OnRemove(func(id string) {
		mu.Lock()
		defer mu.Unlock()
		removed = append(removed, id)
	})

	a := &Cluster{ID: "a", Name: "a", Server: "https://a"}
	b := &Cluster{ID: "b", Name: "b", Server: "https://b"}
	s.Replace(a, b)

	s.Replace(&Cluster{ID: "a", Name: "a", Server: "https://a"})

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got, "unchanged cluster keeps its cached value")

	_, ok = s.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, removed)

	s.Replace(&Cluster{ID: "a", Name: "a", Server: "https://a2"})
	got, _ = s.Get("a")
	assert.NotSame(t, a, got)
}

func TestStore_Collector(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Replace(&Cluster{ID: "a"}, &Cluster{ID: "b"})

	assert.Equal(t, float64(2), testutil.ToFloat64(s.Collector("test")))
}

func TestStore_ListSortsByNameThenID(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Replace(
		&Cluster{ID: "2", Name: "same"},
		&Cluster{ID: "1", Name: "same"},
		&Cluster{ID: "0", Name: "z"},
	)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "2", list[1].ID)
	assert.Equal(t, "0", list[2].ID)
}
