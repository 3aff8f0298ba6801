package model

// RunStage is the pipeline state attached to one analysis run.
// Stages advance strictly in order; Failed is reachable from any stage.
type RunStage int

const (
	StagePending RunStage = iota
	StageFetching
	StageExtracting
	StageResolving
	StageCorrelating
	StageAssembling
	StageDone
	StageFailed
)

var stageNames = map[RunStage]string{
	StagePending:     "pending",
	StageFetching:    "fetching",
	StageExtracting:  "extracting",
	StageResolving:   "resolving",
	StageCorrelating: "correlating",
	StageAssembling:  "assembling",
	StageDone:        "done",
	StageFailed:      "failed",
}

// String returns the lowercase stage name.
func (s RunStage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the stage ends a run.
func (s RunStage) Terminal() bool {
	return s == StageDone || s == StageFailed
}
