package watch

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	watchapi "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// resourceClient adapts one resource kind to the list+watch protocol the
// connection manager speaks. List returns the seed records together with
// the resourceVersion the follow-up watch must start from.
type resourceClient interface {
	List(ctx context.Context) ([]Record, string, error)
	Watch(ctx context.Context, resourceVersion string) (watchapi.Interface, error)
	Convert(obj runtime.Object) (Record, bool)
}

func newResourceClient(cs kubernetes.Interface, kind Kind) (resourceClient, error) {
	switch kind {
	case KindPods:
		return podClient{cs}, nil
	case KindJobs:
		return jobClient{cs}, nil
	case KindReplicaSets:
		return replicaSetClient{cs}, nil
	case KindServices:
		return serviceClient{cs}, nil
	default:
		return nil, fmt.Errorf("unsupported watch kind %q", kind)
	}
}

type podClient struct{ cs kubernetes.Interface }

func (c podClient) List(ctx context.Context) ([]Record, string, error) {
	list, err := c.cs.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, "", err
	}
	out := make([]Record, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, podRecord(&list.Items[i]))
	}
	return out, list.ResourceVersion, nil
}

func (c podClient) Watch(ctx context.Context, rv string) (watchapi.Interface, error) {
	return c.cs.CoreV1().Pods(metav1.NamespaceAll).Watch(ctx, metav1.ListOptions{ResourceVersion: rv})
}

func (c podClient) Convert(obj runtime.Object) (Record, bool) {
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		return Record{}, false
	}
	return podRecord(pod), true
}

func podRecord(pod *corev1.Pod) Record {
	var ready, restarts int32
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
		restarts += cs.RestartCount
	}
	return Record{
		Kind:        KindPods,
		Namespace:   pod.Namespace,
		Name:        pod.Name,
		Status:      podStatus(pod),
		Ready:       ready,
		Desired:     int32(len(pod.Spec.Containers)),
		Restarts:    restarts,
		Node:        pod.Spec.NodeName,
		Owner:       controllerOwner(pod.OwnerReferences),
		Labels:      pod.Labels,
		Created:     pod.CreationTimestamp.Time,
		Terminating: pod.DeletionTimestamp != nil,
	}
}

// podStatus prefers the most specific waiting/terminated reason over the
// coarse phase, the way kubectl renders the STATUS column.
func podStatus(pod *corev1.Pod) string {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return cs.State.Waiting.Reason
		}
		if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" {
			return cs.State.Terminated.Reason
		}
	}
	for _, cs := range pod.Status.InitContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return "Init:" + cs.State.Waiting.Reason
		}
		if cs.State.Terminated != nil && cs.State.Terminated.ExitCode != 0 {
			return "Init:Error"
		}
	}
	return string(pod.Status.Phase)
}

type jobClient struct{ cs kubernetes.Interface }

func (c jobClient) List(ctx context.Context) ([]Record, string, error) {
	list, err := c.cs.BatchV1().Jobs(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, "", err
	}
	out := make([]Record, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, jobRecord(&list.Items[i]))
	}
	return out, list.ResourceVersion, nil
}

func (c jobClient) Watch(ctx context.Context, rv string) (watchapi.Interface, error) {
	return c.cs.BatchV1().Jobs(metav1.NamespaceAll).Watch(ctx, metav1.ListOptions{ResourceVersion: rv})
}

func (c jobClient) Convert(obj runtime.Object) (Record, bool) {
	job, ok := obj.(*batchv1.Job)
	if !ok {
		return Record{}, false
	}
	return jobRecord(job), true
}

func jobRecord(job *batchv1.Job) Record {
	desired := int32(1)
	if job.Spec.Completions != nil {
		desired = *job.Spec.Completions
	}
	return Record{
		Kind:        KindJobs,
		Namespace:   job.Namespace,
		Name:        job.Name,
		Status:      jobStatus(job),
		Ready:       job.Status.Succeeded,
		Desired:     desired,
		Owner:       controllerOwner(job.OwnerReferences),
		Labels:      job.Labels,
		Created:     job.CreationTimestamp.Time,
		Terminating: job.DeletionTimestamp != nil,
	}
}

func jobStatus(job *batchv1.Job) string {
	if jobHasCondition(job, batchv1.JobFailed) || job.Status.Failed > 0 {
		return "Failed"
	}
	if jobHasCondition(job, batchv1.JobComplete) {
		return "Complete"
	}
	if job.Spec.Completions != nil && job.Status.Succeeded >= *job.Spec.Completions && job.Status.Succeeded > 0 {
		return "Complete"
	}
	if job.Status.Active > 0 {
		return "Running"
	}
	if job.Status.Succeeded > 0 {
		return "Complete"
	}
	return "Pending"
}

func jobHasCondition(job *batchv1.Job, condType batchv1.JobConditionType) bool {
	for _, cond := range job.Status.Conditions {
		if cond.Type == condType && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

type replicaSetClient struct{ cs kubernetes.Interface }

func (c replicaSetClient) List(ctx context.Context) ([]Record, string, error) {
	list, err := c.cs.AppsV1().ReplicaSets(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, "", err
	}
	out := make([]Record, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, replicaSetRecord(&list.Items[i]))
	}
	return out, list.ResourceVersion, nil
}

func (c replicaSetClient) Watch(ctx context.Context, rv string) (watchapi.Interface, error) {
	return c.cs.AppsV1().ReplicaSets(metav1.NamespaceAll).Watch(ctx, metav1.ListOptions{ResourceVersion: rv})
}

func (c replicaSetClient) Convert(obj runtime.Object) (Record, bool) {
	rs, ok := obj.(*appsv1.ReplicaSet)
	if !ok {
		return Record{}, false
	}
	return replicaSetRecord(rs), true
}

func replicaSetRecord(rs *appsv1.ReplicaSet) Record {
	desired := int32(0)
	if rs.Spec.Replicas != nil {
		desired = *rs.Spec.Replicas
	}
	status := "Available"
	if rs.Status.ReadyReplicas < desired {
		status = "Progressing"
	}
	return Record{
		Kind:        KindReplicaSets,
		Namespace:   rs.Namespace,
		Name:        rs.Name,
		Status:      status,
		Ready:       rs.Status.ReadyReplicas,
		Desired:     desired,
		Owner:       controllerOwner(rs.OwnerReferences),
		Labels:      rs.Labels,
		Created:     rs.CreationTimestamp.Time,
		Terminating: rs.DeletionTimestamp != nil,
	}
}

type serviceClient struct{ cs kubernetes.Interface }

func (c serviceClient) List(ctx context.Context) ([]Record, string, error) {
	list, err := c.cs.CoreV1().Services(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, "", err
	}
	out := make([]Record, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, serviceRecord(&list.Items[i]))
	}
	return out, list.ResourceVersion, nil
}

func (c serviceClient) Watch(ctx context.Context, rv string) (watchapi.Interface, error) {
	return c.cs.CoreV1().Services(metav1.NamespaceAll).Watch(ctx, metav1.ListOptions{ResourceVersion: rv})
}

func (c serviceClient) Convert(obj runtime.Object) (Record, bool) {
	svc, ok := obj.(*corev1.Service)
	if !ok {
		return Record{}, false
	}
	return serviceRecord(svc), true
}

func serviceRecord(svc *corev1.Service) Record {
	typ := string(svc.Spec.Type)
	if typ == "" {
		typ = string(corev1.ServiceTypeClusterIP)
	}
	return Record{
		Kind:        KindServices,
		Namespace:   svc.Namespace,
		Name:        svc.Name,
		Status:      typ,
		Ready:       int32(len(svc.Spec.Ports)),
		Desired:     int32(len(svc.Spec.Ports)),
		Owner:       controllerOwner(svc.OwnerReferences),
		Labels:      svc.Labels,
		Created:     svc.CreationTimestamp.Time,
		Terminating: svc.DeletionTimestamp != nil,
	}
}

// controllerOwner picks the first controller owner-reference name; that is
// the value the search filter matches against.
func controllerOwner(refs []metav1.OwnerReference) string {
	for _, ref := range refs {
		if ref.Controller == nil || *ref.Controller {
			return ref.Name
		}
	}
	return ""
}
