package mediahaven

// ResultSet is the search response.
type ResultSet struct {
	TotalNrOfResults int      `json:"TotalNrOfResults"`
	MediaDataList    []Record `json:"MediaDataList"`
}

// Record is the projection of a MediaHaven object or fragment this service reads.
type Record struct {
	Internal       Internal       `json:"Internal"`
	Descriptive    Descriptive    `json:"Descriptive"`
	Administrative Administrative `json:"Administrative"`
}

type Internal struct {
	MediaObjectID string `json:"MediaObjectId"`
	FragmentID    string `json:"FragmentId"`
	IsFragment    bool   `json:"IsFragment"`
}

type Descriptive struct {
	Title string `json:"Title"`
}

// Administrative.Type holds the intellectual-entity type (video, audio, ...).
type Administrative struct {
	Type string `json:"Type"`
}
