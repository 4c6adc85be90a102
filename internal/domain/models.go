// Package domain defines the persistence models for the bot backend. These
// types are mapped with GORM onto the embedded SQLite store and are shared
// across the repository and service layers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// IdempotencyKey records a recently-seen external event key. A row exists for
// every claimed key until its TTL expires; expired rows are purged lazily.
type IdempotencyKey struct {
	Key       string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ClaimedAt time.Time `gorm:"type:DATETIME NOT NULL"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyKey) TableName() string { return "idempotency_keys" }

// RelayUser is the durable directory of everyone who has ever written to the
// bot in private. Rows are upserted on every inbound private message and are
// never deleted.
type RelayUser struct {
	UserID   int64     `gorm:"primaryKey"`
	Username string    `gorm:"type:TEXT"`
	FullName string    `gorm:"type:TEXT"`
	Lang     string    `gorm:"type:TEXT"` // Telegram language_code, drives the header flag
	LastSeen time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (RelayUser) TableName() string { return "relay_users" }

// PostingJob statuses. Transitions are monotonic: pending may loop on retry,
// sent and failed are terminal.
const (
	PostStatusPending = "pending"
	PostStatusSent    = "sent"
	PostStatusFailed  = "failed"
)

// Posting content kinds. The file kinds carry a Telegram file_id in FileRef.
const (
	PostKindText      = "text"
	PostKindPhoto     = "photo"
	PostKindVideo     = "video"
	PostKindDocument  = "document"
	PostKindAnimation = "animation"
	PostKindVoice     = "voice"
	PostKindAudio     = "audio"
	PostKindSticker   = "sticker"
	PostKindVideoNote = "video_note"
)

// PostingJob is one scheduled send to one recipient. Broadcasts are fanned out
// into one row per recipient at enqueue time, so the worker treats every row
// identically.
type PostingJob struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ChatID    int64     `gorm:"not null"`
	Kind      string    `gorm:"type:TEXT NOT NULL"`
	Text      string    `gorm:"type:TEXT"`
	FileRef   string    `gorm:"type:TEXT"`
	RunAt     time.Time `gorm:"type:DATETIME NOT NULL;index:idx_post_due,priority:2"`
	Status    string    `gorm:"type:TEXT NOT NULL;default:'pending';index:idx_post_due,priority:1"`
	Retries   int       `gorm:"not null;default:0"`
	Error     string    `gorm:"type:TEXT"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL"`
}

// TableName implements the GORM tabler interface.
func (PostingJob) TableName() string { return "post_queue" }

// Canonical payment event statuses produced by the normalizer.
const (
	PayStatusPaid      = "paid"
	PayStatusExpired   = "expired"
	PayStatusCancelled = "cancelled"
	PayStatusPending   = "pending"
	PayStatusUnknown   = "unknown"
)

// PaymentEvent is an immutable record of a normalized provider webhook.
// The unique index on (provider, invoice_id, status) deduplicates re-posts
// of the same terminal status.
type PaymentEvent struct {
	ID        string          `gorm:"type:char(36);primaryKey"`
	Provider  string          `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_provider_invoice_status,priority:1"`
	InvoiceID string          `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_provider_invoice_status,priority:2"`
	Status    string          `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_provider_invoice_status,priority:3"`
	Amount    decimal.Decimal `gorm:"type:NUMERIC NOT NULL"`
	Currency  string          `gorm:"type:TEXT NOT NULL"`
	Meta      string          `gorm:"type:TEXT NOT NULL"` // JSON object set at invoice creation
	CreatedAt time.Time       `gorm:"type:DATETIME NOT NULL"`
}

// TableName implements the GORM tabler interface.
func (PaymentEvent) TableName() string { return "payment_events" }

// AccessGrant records one successful paid-access grant: a single-use,
// time-limited invite link issued to a user. Immutable.
type AccessGrant struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	UserID     int64     `gorm:"not null;index"`
	PlanCode   string    `gorm:"type:TEXT NOT NULL"`
	InviteLink string    `gorm:"type:TEXT NOT NULL"`
	Until      time.Time `gorm:"type:DATETIME NOT NULL;index"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL"`
}

// TableName implements the GORM tabler interface.
func (AccessGrant) TableName() string { return "access_grants" }

// PendingInvoice tracks an issued, not-yet-settled invoice. Deleted on cancel
// or terminal settlement.
type PendingInvoice struct {
	InvoiceID    string          `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID       int64           `gorm:"not null;index"`
	PlanCode     string          `gorm:"type:TEXT"`
	Currency     string          `gorm:"type:TEXT"`
	PlanCallback string          `gorm:"type:TEXT"`
	PlanName     string          `gorm:"type:TEXT"`
	Price        decimal.Decimal `gorm:"type:NUMERIC"`
	PeriodDays   int             `gorm:"not null;default:0"`
	CreatedAt    time.Time       `gorm:"type:DATETIME NOT NULL"`
}

// TableName implements the GORM tabler interface.
func (PendingInvoice) TableName() string { return "pending_invoices" }

// Relay message directions.
const (
	RelayDirIn  = "in"  // user → operator group
	RelayDirOut = "out" // operator group → user
)

// RelayMessage is the relay history log. Operators page through it with
// /history; the core only appends.
type RelayMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	UserID     int64     `gorm:"not null;index:idx_relay_history,priority:1"`
	Direction  string    `gorm:"type:TEXT NOT NULL"`
	Kind       string    `gorm:"type:TEXT NOT NULL"`
	Text       string    `gorm:"type:TEXT"`
	FileRef    string    `gorm:"type:TEXT"`
	GroupMsgID int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;index:idx_relay_history,priority:2"`
}

// TableName implements the GORM tabler interface.
func (RelayMessage) TableName() string { return "messages" }

// Streak counts consecutive active days per relay user, bumped whenever the
// user writes on a new UTC day.
type Streak struct {
	UserID  int64  `gorm:"primaryKey"`
	Days    int    `gorm:"not null;default:0"`
	LastDay string `gorm:"type:TEXT NOT NULL"` // UTC date, YYYY-MM-DD
}

// TableName implements the GORM tabler interface.
func (Streak) TableName() string { return "streaks" }
