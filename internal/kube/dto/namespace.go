package dto

type NamespaceRow struct {
	Name      string `json:"name"`
	Phase     string `json:"phase"`
	Unhealthy bool   `json:"unhealthy,omitempty"`
	AgeSec    int64  `json:"ageSec"`
}
