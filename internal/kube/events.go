package kube

import (
	"context"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/kube/dto"
)

// ListEventsForObject returns the events for one object, newest first. It
// tries a fieldSelector query first and falls back to a full namespace list,
// since some API servers reject involvedObject selectors.
func ListEventsForObject(ctx context.Context, cs kubernetes.Interface, namespace, kind, name string) ([]dto.EventRow, error) {
	selector := "involvedObject.kind=" + kind + ",involvedObject.name=" + name
	evs, err := cs.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{FieldSelector: selector})
	if err == nil && len(evs.Items) > 0 {
		return sortedEventRows(evs.Items), nil
	}

	all, listErr := cs.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	if listErr != nil {
		if err != nil {
			return nil, err
		}
		return nil, listErr
	}

	matched := make([]corev1.Event, 0)
	for _, e := range all.Items {
		if strings.TrimSpace(e.InvolvedObject.Kind) == kind && strings.TrimSpace(e.InvolvedObject.Name) == name {
			matched = append(matched, e)
		}
	}
	return sortedEventRows(matched), nil
}

// LatestEventsByObject maps object name to its most recent event, for the
// lastEvent column on list views.
func LatestEventsByObject(ctx context.Context, cs kubernetes.Interface, namespace, kind string) (map[string]dto.EventBrief, error) {
	evs, err := cs.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	out := make(map[string]dto.EventBrief)
	for _, e := range evs.Items {
		if strings.TrimSpace(e.InvolvedObject.Kind) != kind {
			continue
		}
		objName := strings.TrimSpace(e.InvolvedObject.Name)
		if objName == "" {
			continue
		}
		last := eventLastSeen(e).Unix()
		if prev, ok := out[objName]; ok && prev.LastSeen >= last {
			continue
		}
		out[objName] = dto.EventBrief{Type: e.Type, Reason: e.Reason, LastSeen: last}
	}
	return out, nil
}

func sortedEventRows(items []corev1.Event) []dto.EventRow {
	out := make([]dto.EventRow, 0, len(items))
	for _, e := range items {
		out = append(out, dto.EventRow{
			Type:      e.Type,
			Reason:    e.Reason,
			Message:   e.Message,
			Count:     e.Count,
			FirstSeen: eventFirstSeen(e).Unix(),
			LastSeen:  eventLastSeen(e).Unix(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen > out[j].LastSeen })
	return out
}

func eventFirstSeen(e corev1.Event) time.Time {
	if !e.FirstTimestamp.IsZero() {
		return e.FirstTimestamp.Time
	}
	if !e.CreationTimestamp.IsZero() {
		return e.CreationTimestamp.Time
	}
	return time.Now()
}

func eventLastSeen(e corev1.Event) time.Time {
	if !e.LastTimestamp.IsZero() {
		return e.LastTimestamp.Time
	}
	if !e.CreationTimestamp.IsZero() {
		return e.CreationTimestamp.Time
	}
	return time.Now()
}
