// Package id provides centralized ID generation for the host.
//
// IDs are ULIDs with a short type prefix so log lines stay readable:
//   - job_*  installation queue jobs
//   - sync_* catalog sync runs
//   - sess_* rendered micro-app sessions
//   - trace_* inbound API requests
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobID identifies an installation queue job
type JobID string

// SyncID identifies one reconciliation pass of the sync orchestrator
type SyncID string

// SessionID identifies a rendered micro-app session
type SessionID string

// TraceID correlates the log lines and backend calls of one API request
type TraceID string

const (
	JobPrefix     = "job"
	SyncPrefix    = "sync"
	SessionPrefix = "sess"
	TracePrefix   = "trace"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewJobID generates a new queue job ID
func NewJobID() JobID {
	return JobID(Default().GenerateWithPrefix(JobPrefix))
}

// NewSyncID generates a new sync run ID
func NewSyncID() SyncID {
	return SyncID(Default().GenerateWithPrefix(SyncPrefix))
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewTraceID generates a new request trace ID
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

func (id JobID) String() string     { return string(id) }
func (id SyncID) String() string    { return string(id) }
func (id SessionID) String() string { return string(id) }
func (id TraceID) String() string   { return string(id) }

// Timestamp extracts the creation time from a prefixed or bare ID
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
