package data

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

// Candidate is an entry under the output directory that matches the output
// naming pattern. It is re-derived on every scan and never persisted.
type Candidate struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// ReplicationRecord marks an identity as already copied to the backup
// directory. An identity is recorded at most once.
type ReplicationRecord struct {
	Identity     string    `json:"identity"`
	SourcePath   string    `json:"sourcePath"`
	BackupPath   string    `json:"backupPath"`
	Digest       string    `json:"digest,omitempty"`
	Size         int64     `json:"size"`
	ReplicatedAt time.Time `json:"replicatedAt"`
}

func (r ReplicationRecord) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(r) }

type ReplicationRecords []ReplicationRecord

var ErrNotFound = errors.New("replication record not found")

func (r ReplicationRecords) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(r) }

// Clone returns a copy of the slice so callers can't mutate ledger state.
func (r ReplicationRecords) Clone() ReplicationRecords {
	if r == nil {
		return ReplicationRecords{}
	}
	out := make(ReplicationRecords, len(r))
	copy(out, r)
	return out
}
