package domain

import "fmt"

// TranscriptChunk is one window of a video transcript.
// Adjacent chunks of the same transcript overlap on purpose.
type TranscriptChunk struct {
	Text          string
	SourceVideoID string
	Sequence      int
}

// RecordMetadata is the provenance stored next to every vector.
type RecordMetadata struct {
	Text     string `json:"text"`
	Source   string `json:"source"`
	Batch    string `json:"batch,omitempty"`
	Sequence int    `json:"sequence"`
	Model    string `json:"model,omitempty"`
}

// IndexRecord is a single entry of the vector index.
type IndexRecord struct {
	ID       string
	Vector   []float32
	Metadata RecordMetadata
}

// Match is a scored hit returned by a similarity query.
type Match struct {
	ID       string
	Score    float32
	Metadata *RecordMetadata
}

// RecordID builds the index id of a chunk: video id, ingest timestamp and
// sequence. The timestamp keeps re-ingests of the same video distinct.
func RecordID(videoID, batch string, sequence int) string {
	return fmt.Sprintf("%s-%s-%d", videoID, batch, sequence)
}
