package session

import (
	"github.com/franz/dupe-janitor/internal/cluster"
)

// Stage is the lifecycle position of a scan session
type Stage string

const (
	StageStarting  Stage = "starting"
	StageLoading   Stage = "loading"
	StageScanning  Stage = "scanning"
	StageCompleted Stage = "completed"
	StageCancelled Stage = "cancelled"
	StageError     Stage = "error"
)

// Terminal reports whether no further transitions can happen
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled || s == StageError
}

// Snapshot is the progress of one session at a point in time
type Snapshot struct {
	SessionID            string           `json:"sessionId"`
	Stage                Stage            `json:"stage"`
	Strategy             cluster.Strategy `json:"strategy,omitempty"`
	TotalFiles           int              `json:"totalFiles"`
	FilesProcessed       int              `json:"filesProcessed"`
	TotalComparisons     int              `json:"totalComparisons"`
	ComparisonsCompleted int              `json:"comparisonsCompleted"`
	GroupsFound          int              `json:"groupsFound"`
	PercentComplete      float64          `json:"percentComplete"`
	Cancelled            bool             `json:"cancelled"`
	Complete             bool             `json:"complete"` // terminal, no more events follow
	Error                string           `json:"error,omitempty"`
}

// GroupBatch carries groups discovered since the previous batch
type GroupBatch struct {
	SessionID        string          `json:"sessionId"`
	Groups           []cluster.Group `json:"groups"`
	TotalGroupsFound int             `json:"totalGroupsFound"`
}

func (s *Snapshot) updatePercent() {
	switch {
	case s.Stage == StageCompleted:
		s.PercentComplete = 100
	case s.TotalFiles > 0:
		s.PercentComplete = float64(s.FilesProcessed) * 100 / float64(s.TotalFiles)
	default:
		s.PercentComplete = 0
	}
}
