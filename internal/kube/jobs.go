package kube

import (
	"context"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/kube/dto"
)

func ListJobs(ctx context.Context, cs kubernetes.Interface, namespace string) ([]dto.JobRow, error) {
	jobs, err := cs.BatchV1().Jobs(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]dto.JobRow, 0, len(jobs.Items))
	for i := range jobs.Items {
		out = append(out, jobRow(&jobs.Items[i], now))
	}
	return out, nil
}

func jobRow(job *batchv1.Job, now time.Time) dto.JobRow {
	return dto.JobRow{
		Name:        job.Name,
		Namespace:   job.Namespace,
		Status:      jobPhase(job),
		Active:      job.Status.Active,
		Succeeded:   job.Status.Succeeded,
		Failed:      job.Status.Failed,
		Owner:       ownerOf(job.OwnerReferences),
		Labels:      mapCopy(job.Labels),
		DurationSec: jobDurationSec(job),
		AgeSec:      ageSec(now, job.CreationTimestamp),
	}
}

func jobPhase(job *batchv1.Job) string {
	if jobHasCondition(job, batchv1.JobFailed) || job.Status.Failed > 0 {
		return "Failed"
	}
	if jobHasCondition(job, batchv1.JobComplete) {
		return "Complete"
	}
	if job.Spec.Completions != nil && job.Status.Succeeded > 0 && job.Status.Succeeded >= *job.Spec.Completions {
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

func jobDurationSec(job *batchv1.Job) int64 {
	start := unixFrom(job.Status.StartTime)
	complete := unixFrom(job.Status.CompletionTime)
	if start > 0 && complete >= start {
		return complete - start
	}
	return 0
}

func GetJobDetails(ctx context.Context, cs kubernetes.Interface, namespace, name string) (*dto.JobDetails, error) {
	job, err := cs.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	yamlDoc, err := toYAML(job, "batch/v1", "Job")
	if err != nil {
		return nil, err
	}

	conds := make([]dto.Condition, 0, len(job.Status.Conditions))
	for _, c := range job.Status.Conditions {
		conds = append(conds, dto.Condition{
			Type:               string(c.Type),
			Status:             string(c.Status),
			Reason:             c.Reason,
			Message:            c.Message,
			LastTransitionTime: c.LastTransitionTime.Unix(),
		})
	}

	return &dto.JobDetails{
		Row:         jobRow(job, time.Now()),
		Completions: job.Spec.Completions,
		Parallelism: job.Spec.Parallelism,
		Conditions:  conds,
		Annotations: mapCopy(job.Annotations),
		YAML:        yamlDoc,
	}, nil
}
