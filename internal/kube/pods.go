package kube

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/kube/dto"
)

func ListPods(ctx context.Context, cs kubernetes.Interface, namespace string) ([]dto.PodRow, error) {
	pods, err := cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	// Best effort: a missing event list only means no lastEvent column.
	latestEvents, _ := LatestEventsByObject(ctx, cs, namespace, "Pod")

	now := time.Now()
	out := make([]dto.PodRow, 0, len(pods.Items))
	for i := range pods.Items {
		row := podRow(&pods.Items[i], now)
		if ev, ok := latestEvents[row.Name]; ok {
			evCopy := ev
			row.LastEvent = &evCopy
		}
		out = append(out, row)
	}
	return out, nil
}

func podRow(p *corev1.Pod, now time.Time) dto.PodRow {
	readyCount, totalCount := 0, 0
	var restarts int32
	for _, cs := range p.Status.ContainerStatuses {
		totalCount++
		if cs.Ready {
			readyCount++
		}
		restarts += cs.RestartCount
	}

	return dto.PodRow{
		Name:      p.Name,
		Namespace: p.Namespace,
		Node:      p.Spec.NodeName,
		Phase:     string(p.Status.Phase),
		Ready:     fmtReady(readyCount, totalCount),
		Restarts:  restarts,
		Owner:     ownerOf(p.OwnerReferences),
		Labels:    mapCopy(p.Labels),
		AgeSec:    ageSec(now, p.CreationTimestamp),
	}
}

func GetPodDetails(ctx context.Context, cs kubernetes.Interface, namespace, name string) (*dto.PodDetails, error) {
	p, err := cs.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	yamlDoc, err := toYAML(p, "v1", "Pod")
	if err != nil {
		return nil, err
	}

	containers := make([]dto.ContainerBrief, 0, len(p.Status.ContainerStatuses))
	for _, st := range p.Status.ContainerStatuses {
		containers = append(containers, dto.ContainerBrief{
			Name:     st.Name,
			Image:    st.Image,
			Ready:    st.Ready,
			State:    containerState(st.State),
			Restarts: st.RestartCount,
		})
	}

	return &dto.PodDetails{
		Row:         podRow(p, time.Now()),
		QOSClass:    string(p.Status.QOSClass),
		PodIP:       p.Status.PodIP,
		Containers:  containers,
		Annotations: mapCopy(p.Annotations),
		YAML:        yamlDoc,
	}, nil
}

func containerState(s corev1.ContainerState) string {
	switch {
	case s.Running != nil:
		return "Running"
	case s.Terminated != nil:
		if s.Terminated.Reason != "" {
			return s.Terminated.Reason
		}
		return "Terminated"
	case s.Waiting != nil:
		if s.Waiting.Reason != "" {
			return s.Waiting.Reason
		}
		return "Waiting"
	default:
		return "Unknown"
	}
}
