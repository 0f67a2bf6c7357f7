// Package quota implements the Quota Gate (SPEC_FULL.md §4.5): a monthly
// token counter keyed by tenant, checked before the orchestrator calls the
// LLM and incremented by the Persistence Writer once a turn completes.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Store is the counter persistence interface, grounded on the teacher's
// pkg/ratelimit/interfaces.go Store interface, narrowed to the single
// counter shape this gate needs (no multi-limit-type/window generality,
// since the spec has exactly one limit: monthly tokens per tenant).
type Store interface {
	// Get returns the tenant's usage so far in the given year-month and the
	// time the counter naturally expires. If no record exists, it returns 0
	// and a fresh expiry.
	Get(ctx context.Context, tenantID, yearMonth string) (used int64, expiresAt time.Time, err error)

	// Increment adds delta tokens to the tenant's counter for yearMonth,
	// creating it with a TTL slightly over one month if it doesn't exist,
	// and returns the new total.
	Increment(ctx context.Context, tenantID, yearMonth string, delta int64) (int64, error)

	Close() error
}

// counterTTL is slightly over one calendar month so a counter created on
// the first day of a long month still outlives it.
const counterTTL = 32 * 24 * time.Hour

// Gate checks and records monthly token spend per tenant.
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// yearMonth formats t as the counter key's month component, e.g. "2026-07".
func yearMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Allow reports whether the tenant has remaining quota this month. A
// tenant with no resolvable id (empty tenantID) or no configured quota
// (quotaLimit <= 0) is always allowed — there is no global fallback
// bucket, matching the teacher's scope-keyed store where every record
// requires a concrete identifier (DESIGN.md, decided Open Questions:
// tenant-less turns are not charged against any counter).
func (g *Gate) Allow(ctx context.Context, tenantID string, quotaLimit int64) (bool, error) {
	if tenantID == "" || quotaLimit <= 0 {
		return true, nil
	}
	used, _, err := g.store.Get(ctx, tenantID, yearMonth(time.Now()))
	if err != nil {
		return false, fmt.Errorf("quota gate: get usage: %w", err)
	}
	return used < quotaLimit, nil
}

// Record adds tokens to the tenant's counter for the current month. A
// no-op for tenant-less turns, consistent with Allow.
func (g *Gate) Record(ctx context.Context, tenantID string, tokens int64) error {
	if tenantID == "" || tokens <= 0 {
		return nil
	}
	if _, err := g.store.Increment(ctx, tenantID, yearMonth(time.Now()), tokens); err != nil {
		return fmt.Errorf("quota gate: increment usage: %w", err)
	}
	return nil
}
