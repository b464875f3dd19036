package dto

type JobRow struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	Status      string            `json:"status"`
	Active      int32             `json:"active"`
	Succeeded   int32             `json:"succeeded"`
	Failed      int32             `json:"failed"`
	Owner       *Owner            `json:"owner,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	DurationSec int64             `json:"durationSec,omitempty"`
	AgeSec      int64             `json:"ageSec"`
}

type JobDetails struct {
	Row         JobRow            `json:"row"`
	Completions *int32            `json:"completions,omitempty"`
	Parallelism *int32            `json:"parallelism,omitempty"`
	Conditions  []Condition       `json:"conditions"`
	Annotations map[string]string `json:"annotations,omitempty"`
	YAML        string            `json:"yaml"`
}
