package kube

import (
	"context"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

type AccessReview struct {
	Verb      string
	Resource  string
	Group     string
	Namespace string
}

type AccessResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanI runs a SelfSubjectAccessReview for the current credentials.
func CanI(ctx context.Context, cs kubernetes.Interface, req AccessReview) (AccessResult, error) {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Verb:      req.Verb,
				Resource:  req.Resource,
				Group:     req.Group,
				Namespace: req.Namespace,
			},
		},
	}

	res, err := cs.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return AccessResult{}, err
	}
	return AccessResult{Allowed: res.Status.Allowed, Reason: res.Status.Reason}, nil
}
