package dto

type ReplicaSetRow struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Status    string            `json:"status"`
	Desired   int32             `json:"desired"`
	Ready     int32             `json:"ready"`
	Revision  int32             `json:"revision,omitempty"`
	Owner     *Owner            `json:"owner,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	AgeSec    int64             `json:"ageSec"`
}

type ReplicaSetDetails struct {
	Row         ReplicaSetRow     `json:"row"`
	Available   int32             `json:"available"`
	Selector    map[string]string `json:"selector,omitempty"`
	Conditions  []Condition       `json:"conditions"`
	Annotations map[string]string `json:"annotations,omitempty"`
	YAML        string            `json:"yaml"`
}
