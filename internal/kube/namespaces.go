package kube

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/kube/dto"
)

func ListNamespaces(ctx context.Context, cs kubernetes.Interface) ([]dto.NamespaceRow, error) {
	nsList, err := cs.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]dto.NamespaceRow, 0, len(nsList.Items))
	for _, ns := range nsList.Items {
		out = append(out, dto.NamespaceRow{
			Name:      ns.Name,
			Phase:     string(ns.Status.Phase),
			Unhealthy: hasUnhealthyCondition(ns.Status.Conditions),
			AgeSec:    ageSec(now, ns.CreationTimestamp),
		})
	}
	return out, nil
}

func hasUnhealthyCondition(conds []corev1.NamespaceCondition) bool {
	for _, c := range conds {
		if c.Status == corev1.ConditionTrue || c.Status == corev1.ConditionUnknown {
			return true
		}
	}
	return false
}
