package kube

import (
	"context"
	"strconv"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/kube/dto"
)

const revisionAnnotation = "deployment.kubernetes.io/revision"

func ListReplicaSets(ctx context.Context, cs kubernetes.Interface, namespace string) ([]dto.ReplicaSetRow, error) {
	rss, err := cs.AppsV1().ReplicaSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]dto.ReplicaSetRow, 0, len(rss.Items))
	for i := range rss.Items {
		out = append(out, replicaSetRow(&rss.Items[i], now))
	}
	return out, nil
}

func replicaSetRow(rs *appsv1.ReplicaSet, now time.Time) dto.ReplicaSetRow {
	desired := int32(0)
	if rs.Spec.Replicas != nil {
		desired = *rs.Spec.Replicas
	}

	status := "Progressing"
	if rs.Status.AvailableReplicas >= desired {
		status = "Available"
	}

	revision := int32(0)
	if v, err := strconv.ParseInt(rs.Annotations[revisionAnnotation], 10, 32); err == nil {
		revision = int32(v)
	}

	return dto.ReplicaSetRow{
		Name:      rs.Name,
		Namespace: rs.Namespace,
		Status:    status,
		Desired:   desired,
		Ready:     rs.Status.ReadyReplicas,
		Revision:  revision,
		Owner:     ownerOf(rs.OwnerReferences),
		Labels:    mapCopy(rs.Labels),
		AgeSec:    ageSec(now, rs.CreationTimestamp),
	}
}

func GetReplicaSetDetails(ctx context.Context, cs kubernetes.Interface, namespace, name string) (*dto.ReplicaSetDetails, error) {
	rs, err := cs.AppsV1().ReplicaSets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	yamlDoc, err := toYAML(rs, "apps/v1", "ReplicaSet")
	if err != nil {
		return nil, err
	}

	conds := make([]dto.Condition, 0, len(rs.Status.Conditions))
	for _, c := range rs.Status.Conditions {
		conds = append(conds, dto.Condition{
			Type:               string(c.Type),
			Status:             string(c.Status),
			Reason:             c.Reason,
			Message:            c.Message,
			LastTransitionTime: c.LastTransitionTime.Unix(),
		})
	}

	var selector map[string]string
	if rs.Spec.Selector != nil {
		selector = mapCopy(rs.Spec.Selector.MatchLabels)
	}

	return &dto.ReplicaSetDetails{
		Row:         replicaSetRow(rs, time.Now()),
		Available:   rs.Status.AvailableReplicas,
		Selector:    selector,
		Conditions:  conds,
		Annotations: mapCopy(rs.Annotations),
		YAML:        yamlDoc,
	}, nil
}
