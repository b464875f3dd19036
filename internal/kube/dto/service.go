package dto

type ServiceRow struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace"`
	Type              string            `json:"type"`
	ClusterIPs        []string          `json:"clusterIPs,omitempty"`
	Ports             string            `json:"ports,omitempty"`
	EndpointsReady    int32             `json:"endpointsReady"`
	EndpointsNotReady int32             `json:"endpointsNotReady"`
	Labels            map[string]string `json:"labels,omitempty"`
	AgeSec            int64             `json:"ageSec"`
}

type ServiceDetails struct {
	Row             ServiceRow        `json:"row"`
	Selector        map[string]string `json:"selector,omitempty"`
	ExternalName    string            `json:"externalName,omitempty"`
	SessionAffinity string            `json:"sessionAffinity,omitempty"`
	Annotations     map[string]string `json:"annotations,omitempty"`
	YAML            string            `json:"yaml"`
}
