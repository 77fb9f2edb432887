package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	authenticationv1 "k8s.io/api/authentication/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/vyrodovalexey/clusterdesk/internal/cluster"
	"github.com/vyrodovalexey/clusterdesk/internal/contenttype"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/router"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// DefaultTokenTTL is the lifetime requested for TokenRequest tokens.
const DefaultTokenTTL = 24 * time.Hour

// errNoToken means no token secret exists and the TokenRequest API
// returned nothing.
var errNoToken = errors.New("no token available for service account")

// Kubeconfig exports kubeconfigs for service accounts of the bound cluster.
type Kubeconfig struct {
	TokenTTL time.Duration
	Logger   observability.Logger
}

// Routes implements router.Producer.
func (k *Kubeconfig) Routes() []router.Route {
	return []router.Route{
		{
			Method:  http.MethodGet,
			Path:    "/api/kubeconfig/service-account/:namespace/:account",
			Handler: k.serviceAccount,
		},
	}
}

func (k *Kubeconfig) serviceAccount(ctx context.Context, req *router.Request) (router.Response, error) {
	if req.Cluster == nil {
		return clusterRequired(), nil
	}

	cs, err := req.Cluster.Clientset()
	if err != nil {
		return fail(http.StatusBadGateway, util.NewClusterError(req.Cluster.ID, "cannot build clientset", err)), nil
	}

	namespace, account := req.Param("namespace"), req.Param("account")
	sa, err := cs.CoreV1().ServiceAccounts(namespace).Get(ctx, account, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return fail(http.StatusNotFound, fmt.Errorf("service account %s/%s: %w", namespace, account, util.ErrNotFound)), nil
	}
	if err != nil {
		return fail(http.StatusBadGateway, util.NewClusterError(req.Cluster.ID, "reading service account", err)), nil
	}

	token, ca, err := k.credentials(ctx, cs, sa)
	if err != nil {
		return fail(http.StatusBadGateway, util.NewClusterError(req.Cluster.ID, "issuing token", err)), nil
	}
	if len(ca) == 0 {
		ca = clusterCA(req.Cluster)
	}

	doc, err := clientcmd.Write(*buildKubeconfig(req.Cluster, sa, token, ca))
	if err != nil {
		return fail(http.StatusInternalServerError, fmt.Errorf("encoding kubeconfig: %w", err)), nil
	}

	return router.Response{Body: string(doc), ContentType: contenttype.Text}, nil
}

// credentials returns a token and, when known, the cluster CA for sa. A
// legacy token secret is preferred; otherwise a token is requested.
func (k *Kubeconfig) credentials(
	ctx context.Context,
	cs kubernetes.Interface,
	sa *corev1.ServiceAccount,
) (token string, ca []byte, err error) {
	for _, ref := range sa.Secrets {
		secret, err := cs.CoreV1().Secrets(sa.Namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			continue
		}
		if t, ok := tokenFromSecret(secret); ok {
			return t, secret.Data[corev1.ServiceAccountRootCAKey], nil
		}
	}

	secrets, err := cs.CoreV1().Secrets(sa.Namespace).List(ctx, metav1.ListOptions{
		FieldSelector: "type=" + string(corev1.SecretTypeServiceAccountToken),
	})
	if err == nil {
		for i := range secrets.Items {
			secret := &secrets.Items[i]
			if secret.Annotations[corev1.ServiceAccountNameKey] != sa.Name {
				continue
			}
			if t, ok := tokenFromSecret(secret); ok {
				return t, secret.Data[corev1.ServiceAccountRootCAKey], nil
			}
		}
	}

	ttl := k.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	seconds := int64(ttl / time.Second)

	tr, err := cs.CoreV1().ServiceAccounts(sa.Namespace).CreateToken(ctx, sa.Name, &authenticationv1.TokenRequest{
		Spec: authenticationv1.TokenRequestSpec{ExpirationSeconds: &seconds},
	}, metav1.CreateOptions{})
	if err != nil {
		return "", nil, err
	}
	if tr.Status.Token == "" {
		return "", nil, errNoToken
	}

	k.logger().Debug("issued service account token",
		observability.String("service_account", sa.Namespace+"/"+sa.Name),
		observability.Duration("ttl", ttl),
	)
	return tr.Status.Token, nil, nil
}

func (k *Kubeconfig) logger() observability.Logger {
	if k.Logger == nil {
		return observability.NopLogger()
	}
	return k.Logger
}

func tokenFromSecret(secret *corev1.Secret) (string, bool) {
	if secret.Type != corev1.SecretTypeServiceAccountToken {
		return "", false
	}
	token := secret.Data[corev1.ServiceAccountTokenKey]
	return string(token), len(token) > 0
}

// clusterCA returns the CA of the cluster's own REST config.
func clusterCA(c *cluster.Cluster) []byte {
	cfg, err := c.RESTConfig()
	if err != nil {
		return nil
	}
	if len(cfg.CAData) > 0 {
		return cfg.CAData
	}
	if cfg.CAFile != "" {
		if data, err := os.ReadFile(cfg.CAFile); err == nil {
			return data
		}
	}
	return nil
}

func buildKubeconfig(c *cluster.Cluster, sa *corev1.ServiceAccount, token string, ca []byte) *clientcmdapi.Config {
	clusterName := c.ContextName
	if clusterName == "" {
		clusterName = c.Name
	}
	contextName := sa.Name + "@" + clusterName

	entry := clientcmdapi.NewCluster()
	entry.Server = c.Server
	if len(ca) > 0 {
		entry.CertificateAuthorityData = ca
	} else if cfg, err := c.RESTConfig(); err == nil && cfg.Insecure {
		entry.InsecureSkipTLSVerify = true
	}

	user := clientcmdapi.NewAuthInfo()
	user.Token = token

	kctx := clientcmdapi.NewContext()
	kctx.Cluster = clusterName
	kctx.AuthInfo = sa.Name
	kctx.Namespace = sa.Namespace

	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[clusterName] = entry
	cfg.AuthInfos[sa.Name] = user
	cfg.Contexts[contextName] = kctx
	cfg.CurrentContext = contextName
	return cfg
}
