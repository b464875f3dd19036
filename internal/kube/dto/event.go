package dto

type EventRow struct {
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Count     int32  `json:"count"`
	FirstSeen int64  `json:"firstSeen"`
	LastSeen  int64  `json:"lastSeen"`
}

type EventBrief struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	LastSeen int64  `json:"lastSeen"`
}
