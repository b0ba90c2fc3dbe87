package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("notification not found")
	ErrStoreClosed = errors.New("record store closed")
)

// Severity is the presentation severity of a notification. For performance
// alerts it doubles as the semantic good/bad signal.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Category classifies a notification by the event kind that produced it.
type Category string

const (
	CategoryContact     Category = "contact"
	CategoryMilestone   Category = "milestone"
	CategoryMaintenance Category = "maintenance"
	CategorySummary     Category = "summary"
	CategoryProject     Category = "project"
	CategoryPerformance Category = "performance"
	CategorySecurity    Category = "security"
	CategoryBackup      Category = "backup"
)

// Record is a persisted notification.
//
// ID and CreatedAt are assigned by the record store at insert time; CreatedAt
// is never taken from the caller's clock so feed ordering stays consistent
// with insertion order.
type Record struct {
	ID        string    `json:"id" db:"id"`
	Type      Severity  `json:"type" db:"type"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Category  Category  `json:"category" db:"category"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Metadata is the category-specific payload of a record. Each category has
// exactly one variant, so rendering and click routing can switch exhaustively.
type Metadata interface {
	MetaCategory() Category
}

type ContactMeta struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
}

type MilestoneMeta struct {
	ProjectID    string `json:"projectId"`
	ProjectTitle string `json:"projectTitle"`
	ViewCount    int    `json:"viewCount"`
	Milestone    int    `json:"milestone"`
}

type MaintenanceMeta struct {
	Kind         MaintenanceKind `json:"kind"`
	ScheduledFor string          `json:"scheduledFor,omitempty"`
}

type SummaryMeta struct {
	Date              string `json:"date"`
	Views             int    `json:"views"`
	NewMessages       int    `json:"newMessages"`
	PublishedProjects int    `json:"publishedProjects"`
	TotalProjects     int    `json:"totalProjects"`
	TopProject        string `json:"topProject,omitempty"`
}

type ProjectMeta struct {
	ProjectID    string `json:"projectId"`
	ProjectTitle string `json:"projectTitle"`
	OldStatus    string `json:"oldStatus"`
	NewStatus    string `json:"newStatus"`
}

type PerformanceMeta struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Trend     Trend   `json:"trend"`
	IsGood    bool    `json:"isGood"`
}

type SecurityMeta struct {
	Kind     string       `json:"kind"`
	Detail   string       `json:"detail,omitempty"`
	Severity SecurityTier `json:"severity"`
}

type BackupMeta struct {
	Status BackupStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

func (ContactMeta) MetaCategory() Category     { return CategoryContact }
func (MilestoneMeta) MetaCategory() Category   { return CategoryMilestone }
func (MaintenanceMeta) MetaCategory() Category { return CategoryMaintenance }
func (SummaryMeta) MetaCategory() Category     { return CategorySummary }
func (ProjectMeta) MetaCategory() Category     { return CategoryProject }
func (PerformanceMeta) MetaCategory() Category { return CategoryPerformance }
func (SecurityMeta) MetaCategory() Category    { return CategorySecurity }
func (BackupMeta) MetaCategory() Category      { return CategoryBackup }

// UnmarshalMetadata decodes a metadata JSON blob into the variant matching
// the record's category. Unknown categories yield a nil metadata, not an
// error, so old rows survive schema growth.
func UnmarshalMetadata(cat Category, raw []byte) (Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch cat {
	case CategoryContact:
		return decodeMeta[ContactMeta](cat, raw)
	case CategoryMilestone:
		return decodeMeta[MilestoneMeta](cat, raw)
	case CategoryMaintenance:
		return decodeMeta[MaintenanceMeta](cat, raw)
	case CategorySummary:
		return decodeMeta[SummaryMeta](cat, raw)
	case CategoryProject:
		return decodeMeta[ProjectMeta](cat, raw)
	case CategoryPerformance:
		return decodeMeta[PerformanceMeta](cat, raw)
	case CategorySecurity:
		return decodeMeta[SecurityMeta](cat, raw)
	case CategoryBackup:
		return decodeMeta[BackupMeta](cat, raw)
	default:
		return nil, nil
	}
}

func decodeMeta[T Metadata](cat Category, raw []byte) (Metadata, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", cat, err)
	}
	return m, nil
}

// ---- Domain events consumed by the factories ----

type ContactSubmission struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Project is the minimal project view the engine needs.
type Project struct {
	ID        string
	Title     string
	Published bool
	Featured  bool
}

type MaintenanceKind string

const (
	MaintenanceScheduled MaintenanceKind = "scheduled"
	MaintenanceEmergency MaintenanceKind = "emergency"
	MaintenanceCompleted MaintenanceKind = "completed"
)

type MaintenanceEvent struct {
	Kind   MaintenanceKind
	Detail string
	// ScheduledFor is optional; zero means unscheduled.
	ScheduledFor time.Time
}

type ActivitySnapshot struct {
	Date              string
	Views             int
	NewMessages       int
	PublishedProjects int
	TotalProjects     int
	TopProject        string
}

type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

type PerformanceSample struct {
	Metric    string
	Value     float64
	Threshold float64
	Trend     Trend
}

type SecurityTier string

const (
	SecurityLow      SecurityTier = "low"
	SecurityMedium   SecurityTier = "medium"
	SecurityHigh     SecurityTier = "high"
	SecurityCritical SecurityTier = "critical"
)

type SecurityEvent struct {
	Kind     string
	Detail   string
	Severity SecurityTier
}

type BackupStatus string

const (
	BackupSucceeded BackupStatus = "succeeded"
	BackupFailed    BackupStatus = "failed"
)

type BackupEvent struct {
	Status BackupStatus
	Detail string
}

// ---- Collaborator contracts ----

// FieldEq is one equality predicate for Store.QueryByField. Field is either
// a record column ("category", "read") or a metadata path ("metadata.metric").
type FieldEq struct {
	Field string
	Value any
}

// Store is the append-mostly record store the engine writes to. Implementations
// live in internal/store; CreatedAt/ID assignment is theirs.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	QueryByField(ctx context.Context, eqs ...FieldEq) ([]Record, error)
	// QueryRecent returns up to limit records, newest first.
	QueryRecent(ctx context.Context, limit int) ([]Record, error)
	// QuerySince returns records of one category created at or after since.
	QuerySince(ctx context.Context, cat Category, since time.Time) ([]Record, error)
	SetRead(ctx context.Context, id string, read bool) error
	// SetAllRead flips every unread record and reports how many changed.
	SetAllRead(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
	// Subscribe delivers the current newest-first top-limit list immediately
	// and again after every mutation. The callback must not block.
	Subscribe(limit int, fn func([]Record)) (unsubscribe func(), err error)
	Close() error
}

// Checkpoints remembers when periodic checks last ran. Backed by a local
// snapshot file; shared by every scheduler instance on the same host.
type Checkpoints interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// StatsSource supplies the data the periodic checks aggregate.
type StatsSource interface {
	ActivitySnapshot(ctx context.Context) (ActivitySnapshot, error)
	PerformanceSamples(ctx context.Context) ([]PerformanceSample, error)
}
