package service

import (
	"context"
	"strings"

	"github.com/tinoosan/dubsync/internal/data"
	"github.com/tinoosan/dubsync/internal/ledger"
)

type Replications interface {
	List(ctx context.Context) (data.ReplicationRecords, error)
	Get(ctx context.Context, identity string) (data.ReplicationRecord, error)
}

type replications struct {
	l ledger.Reader
}

func NewReplications(l ledger.Reader) Replications {
	return &replications{l: l}
}

func (s *replications) List(ctx context.Context) (data.ReplicationRecords, error) {
	recs, err := s.l.List(ctx)
	if err != nil {
		return nil, err
	}
	return recs.Clone(), nil
}

func (s *replications) Get(ctx context.Context, identity string) (data.ReplicationRecord, error) {
	if strings.TrimSpace(identity) == "" {
		return data.ReplicationRecord{}, data.ErrNotFound
	}
	return s.l.Get(ctx, identity)
}
