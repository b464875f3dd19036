package kube

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/yaml"

	"kdash/internal/watch"
)

// toYAML renders an object roughly the way kubectl get -o yaml would:
// TypeMeta filled in (the typed clients leave it empty) and the noisy
// managedFields stripped.
func toYAML(obj runtime.Object, apiVersion, kind string) (string, error) {
	obj = obj.DeepCopyObject()
	obj.GetObjectKind().SetGroupVersionKind(schema.FromAPIVersionAndKind(apiVersion, kind))
	if acc, err := meta.Accessor(obj); err == nil {
		acc.SetManagedFields(nil)
	}
	b, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshal %s yaml: %w", kind, err)
	}
	return string(b), nil
}

// ResourceYAML fetches a single object of one of the streamed kinds and
// returns its YAML document.
func ResourceYAML(ctx context.Context, cs kubernetes.Interface, kind watch.Kind, namespace, name string) (string, error) {
	opts := metav1.GetOptions{}
	switch kind {
	case watch.KindPods:
		p, err := cs.CoreV1().Pods(namespace).Get(ctx, name, opts)
		if err != nil {
			return "", err
		}
		return toYAML(p, "v1", "Pod")
	case watch.KindJobs:
		j, err := cs.BatchV1().Jobs(namespace).Get(ctx, name, opts)
		if err != nil {
			return "", err
		}
		return toYAML(j, "batch/v1", "Job")
	case watch.KindReplicaSets:
		rs, err := cs.AppsV1().ReplicaSets(namespace).Get(ctx, name, opts)
		if err != nil {
			return "", err
		}
		return toYAML(rs, "apps/v1", "ReplicaSet")
	case watch.KindServices:
		svc, err := cs.CoreV1().Services(namespace).Get(ctx, name, opts)
		if err != nil {
			return "", err
		}
		return toYAML(svc, "v1", "Service")
	default:
		return "", fmt.Errorf("unsupported kind %q", kind)
	}
}
