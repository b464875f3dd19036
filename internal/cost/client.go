// Package cost talks to an OpenCost-compatible allocation API. The
// dashboard renders whatever the API returns; no cost math happens here.
package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const defaultNamespace = "opencost"

type Client struct {
	baseURL string
	hc      *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Allocation proxies a GET /allocation query. The window and aggregate
// parameters pass through untouched; the response body is returned raw so
// the UI sees exactly what OpenCost produced.
func (c *Client) Allocation(ctx context.Context, window, aggregate string) (json.RawMessage, error) {
	if window == "" {
		return nil, fmt.Errorf("allocation: empty window")
	}

	q := url.Values{}
	q.Set("window", window)
	if aggregate != "" {
		q.Set("aggregate", aggregate)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/allocation?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("allocation query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read allocation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("allocation query: %s", resp.Status)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("allocation query: response is not JSON")
	}
	return body, nil
}

// Stat reports whether OpenCost is reachable from this cluster.
type Stat struct {
	Installed bool   `json:"installed"`
	Ready     bool   `json:"ready"`
	Namespace string `json:"namespace,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Detect probes the conventional opencost deployment. Absence is not an
// error; the cost screens just show an install hint.
func Detect(ctx context.Context, cs kubernetes.Interface) (Stat, error) {
	dep, err := cs.AppsV1().Deployments(defaultNamespace).Get(ctx, "opencost", metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return Stat{}, nil
	}
	if err != nil {
		return Stat{}, err
	}

	return Stat{
		Installed: true,
		Ready:     dep.Status.ReadyReplicas > 0,
		Namespace: dep.Namespace,
		Version:   deploymentImageTag(dep),
	}, nil
}

func deploymentImageTag(dep *appsv1.Deployment) string {
	for _, c := range dep.Spec.Template.Spec.Containers {
		if c.Name != "opencost" {
			continue
		}
		if i := strings.LastIndex(c.Image, ":"); i > 0 && !strings.Contains(c.Image[i:], "/") {
			return c.Image[i+1:]
		}
	}
	return ""
}
