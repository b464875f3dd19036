package kube

import (
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"kdash/internal/kube/dto"
)

func ageSec(now time.Time, ts metav1.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return int64(now.Sub(ts.Time).Seconds())
}

func unixFrom(t *metav1.Time) int64 {
	if t == nil || t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fmtReady(ready, total int) string {
	return fmt.Sprintf("%d/%d", ready, total)
}

// ownerOf returns the controlling owner reference, if any.
func ownerOf(refs []metav1.OwnerReference) *dto.Owner {
	for _, ref := range refs {
		if ref.Controller != nil && *ref.Controller && ref.Name != "" {
			return &dto.Owner{Kind: ref.Kind, Name: ref.Name}
		}
	}
	return nil
}

func mapCopy(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
