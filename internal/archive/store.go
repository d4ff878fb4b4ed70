package archive

import (
	"context"
)

// Store defines persistence operations for evolution run history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
	SaveHistory(ctx context.Context, runID string, history []GenerationRecord) error
	GetHistory(ctx context.Context, runID string) ([]GenerationRecord, bool, error)
	SaveSolutions(ctx context.Context, runID string, solutions []SolutionRecord) error
	GetSolutions(ctx context.Context, runID string) ([]SolutionRecord, bool, error)
}
