package dto

type PodRow struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Node      string            `json:"node,omitempty"`
	Phase     string            `json:"phase"`
	Ready     string            `json:"ready"`
	Restarts  int32             `json:"restarts"`
	Owner     *Owner            `json:"owner,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	AgeSec    int64             `json:"ageSec"`
	LastEvent *EventBrief       `json:"lastEvent,omitempty"`
}

type PodDetails struct {
	Row         PodRow            `json:"row"`
	QOSClass    string            `json:"qosClass,omitempty"`
	PodIP       string            `json:"podIP,omitempty"`
	Containers  []ContainerBrief  `json:"containers"`
	Annotations map[string]string `json:"annotations,omitempty"`
	YAML        string            `json:"yaml"`
}

type ContainerBrief struct {
	Name     string `json:"name"`
	Image    string `json:"image"`
	Ready    bool   `json:"ready"`
	State    string `json:"state"`
	Restarts int32  `json:"restarts"`
}
