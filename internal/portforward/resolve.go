package portforward

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"

	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// target is a resolved pod and container port.
type target struct {
	pod  string
	port int
}

// resolveTarget maps a key to the pod and port the tunnel connects to.
func resolveTarget(ctx context.Context, cs kubernetes.Interface, key Key) (target, error) {
	if key.Kind == KindPod {
		pod, err := cs.CoreV1().Pods(key.Namespace).Get(ctx, key.Name, metav1.GetOptions{})
		if err != nil {
			return target{}, notFound(err, "pod", key)
		}
		if pod.Status.Phase != corev1.PodRunning {
			return target{}, fmt.Errorf("%w: pod %s/%s is %s", ErrNoRunningPod, key.Namespace, key.Name, pod.Status.Phase)
		}
		return target{pod: pod.Name, port: key.Port}, nil
	}

	svc, err := cs.CoreV1().Services(key.Namespace).Get(ctx, key.Name, metav1.GetOptions{})
	if err != nil {
		return target{}, notFound(err, "service", key)
	}
	if len(svc.Spec.Selector) == 0 {
		return target{}, fmt.Errorf("%w: service %s/%s has no selector", ErrNoRunningPod, key.Namespace, key.Name)
	}

	pods, err := cs.CoreV1().Pods(key.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(svc.Spec.Selector).String(),
	})
	if err != nil {
		return target{}, fmt.Errorf("listing pods for service %s/%s: %w", key.Namespace, key.Name, err)
	}

	running := make([]corev1.Pod, 0, len(pods.Items))
	for i := range pods.Items {
		if pods.Items[i].Status.Phase == corev1.PodRunning && pods.Items[i].DeletionTimestamp == nil {
			running = append(running, pods.Items[i])
		}
	}
	if len(running) == 0 {
		return target{}, fmt.Errorf("%w: service %s/%s", ErrNoRunningPod, key.Namespace, key.Name)
	}
	sort.Slice(running, func(i, j int) bool { return running[i].Name < running[j].Name })

	pod := running[0]
	return target{pod: pod.Name, port: servicePortTarget(svc, &pod, key.Port)}, nil
}

// servicePortTarget returns the container port behind a service port.
// Unknown ports are forwarded as is.
func servicePortTarget(svc *corev1.Service, pod *corev1.Pod, port int) int {
	for _, sp := range svc.Spec.Ports {
		if int(sp.Port) != port {
			continue
		}
		switch sp.TargetPort.Type {
		case intstr.Int:
			if sp.TargetPort.IntVal != 0 {
				return int(sp.TargetPort.IntVal)
			}
		case intstr.String:
			if p, ok := namedContainerPort(pod, sp.TargetPort.StrVal); ok {
				return p
			}
		}
		return port
	}
	return port
}

func namedContainerPort(pod *corev1.Pod, name string) (int, bool) {
	for _, c := range pod.Spec.Containers {
		for _, p := range c.Ports {
			if p.Name == name {
				return int(p.ContainerPort), true
			}
		}
	}
	return 0, false
}

func notFound(err error, kind string, key Key) error {
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%s %s/%s: %w", kind, key.Namespace, key.Name, util.ErrNotFound)
	}
	return fmt.Errorf("getting %s %s/%s: %w", kind, key.Namespace, key.Name, err)
}
