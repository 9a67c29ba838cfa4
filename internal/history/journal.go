package history

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/containerd/log"

	"github.com/spin-stack/procsnap/internal/snapshot"
)

// Bucket is the bolt bucket holding journal records.
const Bucket = "operations"

// SectionRecord is the stored outcome of one section.
type SectionRecord struct {
	Section string `json:"section"`
	Path    string `json:"path,omitempty"`
	Bytes   int64  `json:"bytes"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Record is one journal entry.
type Record struct {
	ID        string          `json:"id"`
	Started   time.Time       `json:"started"`
	Duration  time.Duration   `json:"duration"`
	Status    string          `json:"status"`
	Command   uint32          `json:"command"`
	TargetID  int32           `json:"target_id"`
	PID       int             `json:"pid,omitempty"`
	Directory string          `json:"directory,omitempty"`
	Sections  []SectionRecord `json:"sections,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewRecord converts a coordinator result into a journal entry.
func NewRecord(res *snapshot.Result) Record {
	rec := Record{
		Started:   res.Started.UTC(),
		Duration:  res.Duration,
		Status:    res.Status.String(),
		Command:   uint32(res.Request.Command),
		TargetID:  res.Request.TargetID,
		PID:       res.PID,
		Directory: res.Request.OutputDirectory,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	for _, s := range res.Sections {
		sr := SectionRecord{
			Section: s.Section.String(),
			Path:    s.Path,
			Bytes:   s.Bytes,
		}
		if s.Err != nil {
			sr.Kind = string(s.Err.Kind)
			sr.Error = s.Err.Err.Error()
		}
		rec.Sections = append(rec.Sections, sr)
	}
	return rec
}

// Journal appends operation results to a Store and keeps a bounded number
// of records, dropping the oldest first.
type Journal struct {
	store Store[Record]
	max   int

	mu  sync.Mutex
	seq atomic.Uint64
}

var _ snapshot.Recorder = (*Journal)(nil)

// NewJournal returns a journal over store. A maxRecords of zero keeps
// everything.
func NewJournal(store Store[Record], maxRecords int) *Journal {
	return &Journal{store: store, max: maxRecords}
}

// key orders records by start time; the sequence number separates records
// started within the same nanosecond.
func (j *Journal) key(started time.Time) string {
	return fmt.Sprintf("%020d-%06d", started.UnixNano(), j.seq.Add(1)%1_000_000)
}

// Record implements snapshot.Recorder.
func (j *Journal) Record(ctx context.Context, res *snapshot.Result) error {
	rec := NewRecord(res)
	rec.ID = j.key(rec.Started)

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.store.Set(ctx, rec.ID, &rec); err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}
	return j.prune(ctx)
}

func (j *Journal) prune(ctx context.Context) error {
	if j.max <= 0 {
		return nil
	}
	var keys []string
	if err := j.store.Scan(ctx, "", func(key string, _ *Record) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to scan journal: %w", err)
	}
	if len(keys) <= j.max {
		return nil
	}
	drop := keys[:len(keys)-j.max]
	if err := j.store.Delete(ctx, drop...); err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}
	log.G(ctx).WithField("dropped", len(drop)).Debug("pruned operation journal")
	return nil
}

// List returns up to limit records, newest first. A limit of zero returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Record, error) {
	var recs []Record
	err := j.store.Scan(ctx, "", func(_ string, r *Record) error {
		recs = append(recs, *r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.store.Close()
}
