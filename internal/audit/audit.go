package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Audited actions.
const (
	ActionInvoiceGenerate = "invoice.generate"
	ActionInvoiceFinalize = "invoice.finalize"
	ActionInvoicePay      = "invoice.pay"
	ActionInvoiceDelete   = "invoice.delete"
	ActionInvoiceEdit     = "invoice.edit"
	ActionReadingCorrect  = "reading.correct"
	ActionReadingValidate = "reading.validate"
	ActionInvoiceExport   = "invoice.export"
	ActionAllocationRun   = "circulation.allocate"
)

// Entry is one audit log record.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates an audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest of a metadata payload.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Metadata encodes v for Entry.Metadata, ignoring encoding failures.
func Metadata(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Recorder keeps entries in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Log appends an entry.
func (r *Recorder) Log(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}
