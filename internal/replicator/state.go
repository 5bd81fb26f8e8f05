package replicator

// State is the engine's position in its scan cycle.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateProbing
	StateCopying
	StateSkipping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateScanning:
		return "Scanning"
	case StateProbing:
		return "Probing"
	case StateCopying:
		return "Copying"
	case StateSkipping:
		return "Skipping"
	default:
		return "Unknown"
	}
}

// Stage labels per-file failures in logs, events and metrics.
type Stage string

const (
	StageList   Stage = "list"
	StageDigest Stage = "digest"
	StageCopy   Stage = "copy"
	StageLedger Stage = "ledger"
	StagePanic  Stage = "panic"
)
