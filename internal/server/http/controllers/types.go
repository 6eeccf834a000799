package controllers

// Response types for HTTP controllers

type versionResp struct {
	Driver    string `json:"driver"`
	Container string `json:"container"`
	Version   string `json:"version"`
}

type statResp struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	Capacity     int64  `json:"capacity"`
	Used         int64  `json:"used"`
	PercentUsed  int64  `json:"percentUsed"`
	Streams      int    `json:"streams"`
	MaxStreams   int    `json:"maxStreams"`
	MaxBlockSize int    `json:"maxBlockSize"`
	Human        string `json:"human"`
}

type aliasResp struct {
	Alias string `json:"alias"`
	LogID string `json:"logId"`
}
