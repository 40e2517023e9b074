package quota

import (
	"context"
	"time"

	"github.com/baketa-translate/core/pkg/storage/xclickhouse"
)

// UsageRecord is one append-only ledger entry for a billable cloud
// translate call, written regardless of the outcome so usage analysis
// isn't limited to the gate's own in-memory reconciliation window.
type UsageRecord struct {
	SessionToken string    `ch:"session_token"`
	RequestID    string    `ch:"request_id"`
	OccurredAt   time.Time `ch:"occurred_at"`
	InputTokens  int       `ch:"input_tokens"`
	OutputTokens int       `ch:"output_tokens"`
	ImageTokens  int       `ch:"image_tokens"`
	BonusTokens  int       `ch:"bonus_tokens"`
	QuotaExceeded bool     `ch:"quota_exceeded"`
}

// UsageLedger is the append-only record of reconciled usage, kept
// separate from LicenseStore's point-in-time snapshot so historical
// consumption survives a later snapshot overwrite.
type UsageLedger interface {
	Append(ctx context.Context, records []UsageRecord) error
}

type clickhouseLedger struct {
	ch    xclickhouse.ClickHouse
	table string
}

// NewClickHouseLedger builds a UsageLedger backed by table, batching
// every Append call through xclickhouse's BatchInsert.
func NewClickHouseLedger(ch xclickhouse.ClickHouse, table string) UsageLedger {
	return &clickhouseLedger{ch: ch, table: table}
}

func (l *clickhouseLedger) Append(ctx context.Context, records []UsageRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]any, len(records))
	for i, r := range records {
		rows[i] = r
	}
	_, err := l.ch.BatchInsert(ctx, l.table, rows, xclickhouse.BatchOptions{})
	return err
}
