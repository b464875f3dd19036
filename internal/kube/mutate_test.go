package kube

import (
	"context"
	"fmt"
	"strings"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	fakek8s "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"kdash/internal/watch"
)

func TestDeleteResourcePropagation(t *testing.T) {
	cs := fakek8s.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "default"},
	})

	var captured *metav1.DeleteOptions
	cs.PrependReactor("delete", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		del := action.(k8stesting.DeleteActionImpl)
		captured = &del.DeleteOptions
		return false, nil, nil
	})

	if err := DeleteResource(context.Background(), cs, watch.KindPods, "default", "web-1", PropagationOrphan); err != nil {
		t.Fatalf("DeleteResource() error = %v", err)
	}
	if captured == nil || captured.PropagationPolicy == nil {
		t.Fatal("delete options carried no propagation policy")
	}
	if *captured.PropagationPolicy != metav1.DeletePropagationOrphan {
		t.Errorf("policy = %s, want Orphan", *captured.PropagationPolicy)
	}

	if err := DeleteResource(context.Background(), cs, watch.KindPods, "default", "web-1", Propagation("cascade")); err == nil {
		t.Error("unknown propagation accepted")
	}
}

func TestRestartReplicaSetPatchesTemplateAnnotation(t *testing.T) {
	cs := fakek8s.NewSimpleClientset(&appsv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{Name: "api-7d9f", Namespace: "default"},
	})

	var patched []byte
	cs.PrependReactor("patch", "replicasets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		patched = action.(k8stesting.PatchActionImpl).Patch
		return false, nil, nil
	})

	if err := RestartReplicaSet(context.Background(), cs, "default", "api-7d9f"); err != nil {
		t.Fatalf("RestartReplicaSet() error = %v", err)
	}
	if !strings.Contains(string(patched), "kubectl.kubernetes.io/restartedAt") {
		t.Errorf("patch = %s, want restartedAt annotation", patched)
	}
}

func TestScaleReplicaSet(t *testing.T) {
	cs := fakek8s.NewSimpleClientset(&appsv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{Name: "api-7d9f", Namespace: "default"},
	})

	var patched []byte
	cs.PrependReactor("patch", "replicasets", func(action k8stesting.Action) (bool, runtime.Object, error) {
		patched = action.(k8stesting.PatchActionImpl).Patch
		return false, nil, nil
	})

	if err := ScaleReplicaSet(context.Background(), cs, "default", "api-7d9f", 5); err != nil {
		t.Fatalf("ScaleReplicaSet() error = %v", err)
	}
	if string(patched) != `{"spec":{"replicas":5}}` {
		t.Errorf("patch = %s", patched)
	}

	if err := ScaleReplicaSet(context.Background(), cs, "default", "api-7d9f", -1); err == nil {
		t.Error("negative replica count accepted")
	}
}

func TestRerunJobStripsControllerMetadata(t *testing.T) {
	controller := true
	original := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "report",
			Namespace: "default",
			Labels: map[string]string{
				"app":            "report",
				"controller-uid": "abc-123",
				"job-name":       "report",
			},
			OwnerReferences: []metav1.OwnerReference{
				{Kind: "CronJob", Name: "report-cron", Controller: &controller},
			},
		},
		Spec: batchv1.JobSpec{
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{"controller-uid": "abc-123"},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app":            "report",
						"controller-uid": "abc-123",
						"job-name":       "report",
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers:    []corev1.Container{{Name: "main", Image: "report:1"}},
				},
			},
		},
	}
	cs := fakek8s.NewSimpleClientset(original)

	name, err := RerunJob(context.Background(), cs, "default", "report")
	if err != nil {
		t.Fatalf("RerunJob() error = %v", err)
	}
	if !strings.HasPrefix(name, "report-rerun-") && name != "" {
		// The fake clientset may leave GenerateName unexpanded; accept both.
		t.Logf("created job name: %q", name)
	}

	jobs, err := cs.BatchV1().Jobs("default").List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var clone *batchv1.Job
	for i := range jobs.Items {
		if jobs.Items[i].Name != "report" {
			clone = &jobs.Items[i]
		}
	}
	if clone == nil {
		t.Fatal("clone was not created")
	}

	if clone.Spec.Selector != nil {
		t.Error("clone kept the controller selector")
	}
	if len(clone.OwnerReferences) != 0 {
		t.Error("clone kept owner references")
	}
	for _, key := range []string{"controller-uid", "job-name"} {
		if _, ok := clone.Labels[key]; ok {
			t.Errorf("clone labels kept %q", key)
		}
		if _, ok := clone.Spec.Template.Labels[key]; ok {
			t.Errorf("clone template labels kept %q", key)
		}
	}
	if clone.Labels["app"] != "report" || clone.Spec.Template.Labels["app"] != "report" {
		t.Error("user labels did not survive the clone")
	}
}

func TestBulkDeleteAccumulatesFailures(t *testing.T) {
	cs := fakek8s.NewSimpleClientset(
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "ok-1", Namespace: "default"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "ok-2", Namespace: "default"}},
	)
	cs.PrependReactor("delete", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		del := action.(k8stesting.DeleteActionImpl)
		if del.Name == "denied" {
			return true, nil, apierrors.NewForbidden(corev1.Resource("pods"), del.Name, fmt.Errorf("rbac"))
		}
		return false, nil, nil
	})

	refs := []ObjectRef{
		{Namespace: "default", Name: "ok-1"},
		{Namespace: "default", Name: "denied"},
		{Namespace: "default", Name: "ok-2"},
	}
	res := BulkDelete(context.Background(), cs, watch.KindPods, refs, PropagationBackground)

	if res.Total != 3 || res.Succeeded != 2 {
		t.Errorf("result = %d/%d, want 2/3", res.Succeeded, res.Total)
	}
	if len(res.Failures) != 1 || res.Failures[0].Name != "denied" {
		t.Errorf("failures = %+v, want just denied", res.Failures)
	}

	summary := FormatBulkSummary(res)
	if !strings.Contains(summary, "2 of 3 succeeded") || !strings.Contains(summary, "default/denied") {
		t.Errorf("summary = %q", summary)
	}
}

func TestBulkDeleteEmpty(t *testing.T) {
	cs := fakek8s.NewSimpleClientset()
	res := BulkDelete(context.Background(), cs, watch.KindPods, nil, PropagationBackground)
	if res.Total != 0 || res.Succeeded != 0 || len(res.Failures) != 0 {
		t.Errorf("empty bulk = %+v", res)
	}
}
