// Package services contains the server-side business logic on top of the
// repositories: sync push/pull, the vault registry, storage credentials,
// and the object-storage gateway.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haexhub/haex-sync/internal/dbx"
	"github.com/haexhub/haex-sync/internal/hlc"
	"github.com/haexhub/haex-sync/internal/server/models"
	"github.com/haexhub/haex-sync/internal/server/repositories/repomanager"
)

const (
	// PullDefaultLimit applies when the client omits the limit.
	PullDefaultLimit = 100
	// PullMaxLimit caps the row page size.
	PullMaxLimit = 1000
)

// timeNow is a seam for tests.
var timeNow = time.Now

// BatchValidationError reports an incomplete or inconsistent batch. The
// whole push is rejected; nothing is written.
type BatchValidationError struct {
	BatchID          string
	Message          string
	MissingSequences []int
	Expected         int
	Received         int
}

func (e *BatchValidationError) Error() string {
	return fmt.Sprintf("batch %s: %s", e.BatchID, e.Message)
}

// SyncService implements change push and pull for one vault at a time.
type SyncService struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
}

// NewSyncService constructs a SyncService over the shared pool.
func NewSyncService(db *sql.DB, repos repomanager.RepositoryManager) *SyncService {
	return &SyncService{db: db, repos: repos}
}

// Push validates and merges a list of change submissions into the
// caller's vault. Validation runs over the full list before any write;
// all writes happen in one transaction.
func (s *SyncService) Push(ctx context.Context, userID, vaultID string, subs []*models.ChangeSubmission) (*models.PushResult, error) {
	if _, err := s.repos.Vaults(s.db).Get(ctx, userID, vaultID); err != nil {
		return nil, err
	}

	if err := validateBatches(subs); err != nil {
		return nil, err
	}

	merged := collapseByCell(subs)

	var count int
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repos.Changes(tx).UpsertBatch(ctx, userID, vaultID, merged)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	hlcs := make([]string, 0, len(subs))
	for _, sub := range subs {
		hlcs = append(hlcs, sub.HLCTimestamp)
	}

	return &models.PushResult{
		Count:           count,
		LastHLC:         hlc.Max(hlcs...),
		ServerTimestamp: timeNow().UTC(),
	}, nil
}

// Pull returns one page of changes after the cursor. limit == 0 selects
// the default; callers validate the range before calling.
func (s *SyncService) Pull(ctx context.Context, userID, vaultID string, cursor models.PullCursor, excludeDeviceID string, limit int) (*models.PullPage, error) {
	if limit == 0 {
		limit = PullDefaultLimit
	}
	if _, err := s.repos.Vaults(s.db).Get(ctx, userID, vaultID); err != nil {
		return nil, err
	}
	return s.repos.Changes(s.db).SelectPage(ctx, userID, vaultID, cursor, excludeDeviceID, limit)
}

// validateBatches checks every batch_id in the push: sequence numbers
// must form exactly {1..batch_total}, and every member must agree on the
// total. Submissions without batch metadata pass through.
func validateBatches(subs []*models.ChangeSubmission) error {
	type batchState struct {
		total     int
		seen      map[int]bool
		received  int
		duplicate bool
		badTotal  bool
	}
	batches := map[string]*batchState{}
	var order []string

	for _, sub := range subs {
		if sub.BatchID == nil {
			continue
		}
		id := *sub.BatchID
		if sub.BatchSeq == nil || sub.BatchTotal == nil {
			return &BatchValidationError{
				BatchID: id,
				Message: "Incomplete batch metadata",
			}
		}
		st, ok := batches[id]
		if !ok {
			st = &batchState{total: *sub.BatchTotal, seen: map[int]bool{}}
			batches[id] = st
			order = append(order, id)
		}
		if *sub.BatchTotal != st.total {
			st.badTotal = true
		}
		if st.seen[*sub.BatchSeq] {
			st.duplicate = true
		}
		st.seen[*sub.BatchSeq] = true
		st.received++
	}

	for _, id := range order {
		st := batches[id]
		if st.badTotal {
			return &BatchValidationError{
				BatchID:  id,
				Message:  "Conflicting batch totals",
				Expected: st.total,
				Received: st.received,
			}
		}
		if st.duplicate {
			return &BatchValidationError{
				BatchID:  id,
				Message:  "Duplicate sequence numbers in batch",
				Expected: st.total,
				Received: st.received,
			}
		}
		var missing []int
		for seq := 1; seq <= st.total; seq++ {
			if !st.seen[seq] {
				missing = append(missing, seq)
			}
		}
		outOfRange := false
		for seq := range st.seen {
			if seq < 1 || seq > st.total {
				outOfRange = true
			}
		}
		if len(missing) > 0 || outOfRange {
			sort.Ints(missing)
			return &BatchValidationError{
				BatchID:          id,
				Message:          "Missing sequence numbers in batch",
				MissingSequences: missing,
				Expected:         st.total,
				Received:         st.received,
			}
		}
	}
	return nil
}

// collapseByCell keeps the highest-HLC submission per cell so a single
// statement never updates the same row twice. The database guard makes
// the losers no-ops anyway; collapsing them client-side keeps the upsert
// legal.
func collapseByCell(subs []*models.ChangeSubmission) []*models.ChangeSubmission {
	type cellKey struct {
		table  string
		rowPKs string
		column string
	}
	keyOf := func(s *models.ChangeSubmission) cellKey {
		column := "\x00" // distinct from any real column name
		if s.ColumnName != nil {
			column = *s.ColumnName
		}
		return cellKey{s.TableName, s.RowPKs, column}
	}

	best := map[cellKey]*models.ChangeSubmission{}
	var order []cellKey
	for _, sub := range subs {
		k := keyOf(sub)
		cur, ok := best[k]
		if !ok {
			best[k] = sub
			order = append(order, k)
			continue
		}
		if hlc.Newer(sub.HLCTimestamp, cur.HLCTimestamp) {
			best[k] = sub
		}
	}

	out := make([]*models.ChangeSubmission, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// FormatServerTimestamp renders a cursor timestamp as UTC ISO-8601 with
// microsecond precision. Truncating below microseconds makes the next
// pull revisit rows, so the full precision is part of the contract.
func FormatServerTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// ParseCursorTimestamp accepts the formats clients echo back.
func ParseCursorTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04:05.000000Z",
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", strings.TrimSpace(s))
}
