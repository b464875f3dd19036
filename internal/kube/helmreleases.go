package kube

import (
	"context"
	"sort"

	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage"
	"helm.sh/helm/v3/pkg/storage/driver"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/kube/dto"
)

// ListHelmReleases reads release records straight from the Secret storage
// driver, so it works without a Helm binary or a Tiller-era API.
func ListHelmReleases(_ context.Context, cs kubernetes.Interface, namespace string) ([]dto.HelmReleaseRow, error) {
	store := storage.Init(driver.NewSecrets(cs.CoreV1().Secrets(namespace)))
	store.Log = func(_ string, _ ...interface{}) {}

	releases, err := store.ListReleases()
	if err != nil {
		return nil, err
	}

	out := make([]dto.HelmReleaseRow, 0)
	for _, rel := range latestRevisions(releases) {
		out = append(out, releaseRow(rel, namespace))
	}
	return out, nil
}

// latestRevisions keeps only the newest revision per release name.
func latestRevisions(releases []*release.Release) []*release.Release {
	latest := make(map[string]*release.Release)
	for _, r := range releases {
		if cur, ok := latest[r.Name]; !ok || r.Version > cur.Version {
			latest[r.Name] = r
		}
	}
	out := make([]*release.Release, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func releaseRow(rel *release.Release, fallbackNS string) dto.HelmReleaseRow {
	row := dto.HelmReleaseRow{
		Name:      rel.Name,
		Namespace: fallbackNS,
		Status:    "unknown",
		Revision:  rel.Version,
	}
	if rel.Namespace != "" {
		row.Namespace = rel.Namespace
	}
	if rel.Info != nil {
		row.Status = rel.Info.Status.String()
		row.Description = rel.Info.Description
		if !rel.Info.LastDeployed.IsZero() {
			row.Updated = rel.Info.LastDeployed.Unix()
		}
	}
	if rel.Chart != nil && rel.Chart.Metadata != nil {
		m := rel.Chart.Metadata
		row.Chart = m.Name
		if m.Version != "" {
			row.Chart = m.Name + "-" + m.Version
		}
		row.ChartVersion = m.Version
		row.AppVersion = m.AppVersion
	}
	return row
}
