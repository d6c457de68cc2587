package metrics

// Label values used by the engine metrics.
const (
	// ResultCompleted marks a load that reached the completed state.
	ResultCompleted = "completed"
	// ResultCancelled marks a load stopped by the user or a newer load.
	ResultCancelled = "cancelled"
	// ResultFailed marks a load that ended in an error.
	ResultFailed = "failed"

	ResultHit  = "hit"
	ResultMiss = "miss"

	StageDecode  = "decode"
	StageAnalyze = "analyze"
	StageLoad    = "load"
)
