package archive

import "encoding/json"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NewVersionedRecord stamps a record with the current schema and codec
// versions.
func NewVersionedRecord() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// RunRecord describes one completed or stopped evolution run.
type RunRecord struct {
	VersionedRecord
	ID             string  `json:"id"`
	Bench          string  `json:"bench"`
	Strategy       string  `json:"strategy"`
	Eliminator     string  `json:"eliminator"`
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	BestFitness    float64 `json:"best_fitness"`
	StopReason     string  `json:"stop_reason"`
	Seed           int64   `json:"seed"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

// GenerationRecord is one generation's fitness summary within a run.
type GenerationRecord struct {
	Generation   int     `json:"generation"`
	Population   int     `json:"population"`
	Survivors    int     `json:"survivors"`
	BestFitness  float64 `json:"best_fitness"`
	WorstFitness float64 `json:"worst_fitness"`
	MeanFitness  float64 `json:"mean_fitness"`
	Species      int     `json:"species,omitempty"`
}

// SolutionRecord is a ranked genome snapshot from the end of a run. The
// genome payload stays opaque to the archive; the owning bench knows its
// concrete shape.
type SolutionRecord struct {
	VersionedRecord
	RunID   string          `json:"run_id"`
	Rank    int             `json:"rank"`
	Fitness float64         `json:"fitness"`
	Genome  json.RawMessage `json:"genome"`
}
