package kube

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/watch"
)

// Propagation selects the delete cascade behavior exposed in the UI.
type Propagation string

const (
	PropagationBackground Propagation = "background"
	PropagationOrphan     Propagation = "orphan"
)

func deleteOptions(p Propagation) (metav1.DeleteOptions, error) {
	var policy metav1.DeletionPropagation
	switch p {
	case PropagationBackground, "":
		policy = metav1.DeletePropagationBackground
	case PropagationOrphan:
		policy = metav1.DeletePropagationOrphan
	default:
		return metav1.DeleteOptions{}, fmt.Errorf("unknown propagation %q", p)
	}
	return metav1.DeleteOptions{PropagationPolicy: &policy}, nil
}

// DeleteResource removes one object. The caller observes the effect via
// the watch stream, not via this call's return.
func DeleteResource(ctx context.Context, cs kubernetes.Interface, kind watch.Kind, namespace, name string, propagation Propagation) error {
	opts, err := deleteOptions(propagation)
	if err != nil {
		return err
	}
	switch kind {
	case watch.KindPods:
		return cs.CoreV1().Pods(namespace).Delete(ctx, name, opts)
	case watch.KindJobs:
		return cs.BatchV1().Jobs(namespace).Delete(ctx, name, opts)
	case watch.KindReplicaSets:
		return cs.AppsV1().ReplicaSets(namespace).Delete(ctx, name, opts)
	case watch.KindServices:
		return cs.CoreV1().Services(namespace).Delete(ctx, name, opts)
	default:
		return fmt.Errorf("unsupported kind %q", kind)
	}
}

// RestartReplicaSet stamps the pod template with a restart annotation via
// strategic-merge patch, the same trigger kubectl rollout restart uses.
func RestartReplicaSet(ctx context.Context, cs kubernetes.Interface, namespace, name string) error {
	patch := fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{"kubectl.kubernetes.io/restartedAt":%q}}}}}`,
		time.Now().Format(time.RFC3339),
	)
	_, err := cs.AppsV1().ReplicaSets(namespace).Patch(ctx, name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	return err
}

// ScaleReplicaSet patches spec.replicas.
func ScaleReplicaSet(ctx context.Context, cs kubernetes.Interface, namespace, name string, replicas int32) error {
	if replicas < 0 {
		return fmt.Errorf("negative replica count %d", replicas)
	}
	patch := fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas)
	_, err := cs.AppsV1().ReplicaSets(namespace).Patch(ctx, name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	return err
}

// rerunStripKeys are the controller-managed labels that must not survive a
// job clone; the API server would reject a selector conflict otherwise.
var rerunStripKeys = []string{
	"controller-uid",
	"job-name",
	"batch.kubernetes.io/controller-uid",
	"batch.kubernetes.io/job-name",
}

// RerunJob clones a finished job's spec into a fresh job, stripping the
// ownership and selector metadata the controller stamped on the original.
// Returns the new job's name.
func RerunJob(ctx context.Context, cs kubernetes.Interface, namespace, name string) (string, error) {
	job, err := cs.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}

	spec := *job.Spec.DeepCopy()
	spec.Selector = nil
	spec.ManualSelector = nil
	spec.Template.Labels = stripLabels(spec.Template.Labels)
	spec.Suspend = nil

	clone := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:    namespace,
			GenerateName: rerunPrefix(name),
			Labels:       stripLabels(job.Labels),
			Annotations:  job.Annotations,
		},
		Spec: spec,
	}

	created, err := cs.BatchV1().Jobs(namespace).Create(ctx, clone, metav1.CreateOptions{})
	if err != nil {
		return "", err
	}
	return created.Name, nil
}

func rerunPrefix(name string) string {
	// GenerateName plus suffix must fit the 63-char name limit.
	const maxBase = 50
	if len(name) > maxBase {
		name = name[:maxBase]
	}
	return name + "-rerun-"
}

func stripLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	for _, k := range rerunStripKeys {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ObjectRef identifies one target of a bulk mutation.
type ObjectRef struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

type BulkFailure struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Error     string `json:"error"`
}

// BulkResult carries the per-item outcome so the UI can report
// "N of M succeeded" and let the user retry the rest.
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Total     int           `json:"total"`
	Failures  []BulkFailure `json:"failures,omitempty"`
}

// bulkConcurrency bounds in-flight API calls during a bulk mutation.
const bulkConcurrency = 4

// BulkDelete deletes every referenced object with bounded concurrency,
// accumulating failures instead of stopping at the first one.
func BulkDelete(ctx context.Context, cs kubernetes.Interface, kind watch.Kind, refs []ObjectRef, propagation Propagation) BulkResult {
	return runBulk(refs, func(ref ObjectRef) error {
		return DeleteResource(ctx, cs, kind, ref.Namespace, ref.Name, propagation)
	})
}

// BulkRestart rollout-restarts every referenced replicaset.
func BulkRestart(ctx context.Context, cs kubernetes.Interface, refs []ObjectRef) BulkResult {
	return runBulk(refs, func(ref ObjectRef) error {
		return RestartReplicaSet(ctx, cs, ref.Namespace, ref.Name)
	})
}

func runBulk(refs []ObjectRef, do func(ObjectRef) error) BulkResult {
	res := BulkResult{Total: len(refs)}
	if len(refs) == 0 {
		return res
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, bulkConcurrency)
	)

	for _, ref := range refs {
		wg.Add(1)
		sem <- struct{}{}
		go func(ref ObjectRef) {
			defer wg.Done()
			defer func() { <-sem }()

			err := do(ref)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failures = append(res.Failures, BulkFailure{
					Namespace: ref.Namespace,
					Name:      ref.Name,
					Error:     err.Error(),
				})
				return
			}
			res.Succeeded++
		}(ref)
	}
	wg.Wait()

	sort.Slice(res.Failures, func(i, j int) bool {
		a, b := res.Failures[i], res.Failures[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Name < b.Name
	})
	return res
}

// FormatBulkSummary renders the user-visible outcome line.
func FormatBulkSummary(res BulkResult) string {
	if len(res.Failures) == 0 {
		return fmt.Sprintf("%d of %d succeeded", res.Succeeded, res.Total)
	}
	names := make([]string, 0, len(res.Failures))
	for _, f := range res.Failures {
		names = append(names, f.Namespace+"/"+f.Name)
	}
	return fmt.Sprintf("%d of %d succeeded (failed: %s)", res.Succeeded, res.Total, strings.Join(names, ", "))
}
