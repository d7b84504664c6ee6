package runner

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"reel/internal/lineage"
)

const metricsFileName = "metrics.json"

// similarityTextLimit caps how much payload text is indexed for similarity
// search. Transcripts beyond this are representative enough from the head.
const similarityTextLimit = 256 << 10

// stageMetrics is the optional side-channel report a stage process may
// leave next to its outputs. Everything in it is advisory.
type stageMetrics struct {
	Quality  float64  `json:"quality,omitempty"`
	Tool     string   `json:"tool,omitempty"`
	Language string   `json:"language,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// readMetrics loads the stage's metrics file when present. Absent or
// unparseable metrics are ignored; they never fail a stage.
func readMetrics(handle *lineage.Handle) stageMetrics {
	var metrics stageMetrics
	path := filepath.Join(handle.Dir(), metricsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return metrics
	}
	if err := json.Unmarshal(data, &metrics); err != nil {
		return stageMetrics{}
	}
	handle.RecordIntermediate(path, "tool-reported quality metrics")
	return metrics
}

// readSimilarityText returns the head of the payload for similarity
// indexing, empty on any read failure.
func readSimilarityText(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, similarityTextLimit))
	if err != nil {
		return ""
	}
	return string(data)
}
