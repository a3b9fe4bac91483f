package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store holds the active policy table as an immutable snapshot behind an
// atomically replaceable pointer. Readers never block and never observe a
// half-applied table; writers validate a full candidate first and swap the
// pointer in one step.
type Store struct {
	db      *gorm.DB
	current atomic.Pointer[Table]

	// mu serializes writers (Swap, UpsertRule, refresh). Readers go through
	// the atomic pointer only.
	mu sync.Mutex
}

// NewStore constructs a policy store. db may be nil for memory-only use in
// tests; persistence calls become no-ops in that case.
func NewStore(db *gorm.DB) *Store {
	s := &Store{db: db}
	s.current.Store(&Table{Version: 0})
	return s
}

// Current returns the active table snapshot. The returned table must be
// treated as read-only.
func (s *Store) Current() *Table {
	return s.current.Load()
}

// LoadActive loads the active table from the database at startup. A missing
// row leaves the seeded empty table in place.
func (s *Store) LoadActive(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadActiveLocked(ctx)
}

func (s *Store) loadActiveLocked(ctx context.Context) error {
	var row models.PolicyTable
	errFind := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("version DESC").
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil
		}
		return errFind
	}

	table, errDecode := decodeTable(row.Payload, row.Version)
	if errDecode != nil {
		return errDecode
	}
	s.current.Store(table)
	return nil
}

// Swap validates table, persists it as the next active version, and replaces
// the snapshot. On any failure the previous table stays active.
func (s *Store) Swap(ctx context.Context, table *Table, actor string) error {
	if errValidate := ValidateTable(table); errValidate != nil {
		return errValidate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := table.clone()
	next.Version = s.current.Load().Version + 1
	stampRules(next, actor)

	if errPersist := s.persist(ctx, next, actor); errPersist != nil {
		return errPersist
	}
	s.current.Store(next)
	return nil
}

// UpsertRule inserts or replaces a single rule in the current table and
// swaps in the resulting table whole.
func (s *Store) UpsertRule(ctx context.Context, rule Rule, actor string) error {
	if strings.TrimSpace(rule.ID) == "" {
		return &InvalidTableError{Reason: "rule missing id"}
	}
	rule.LastModified = time.Now().UTC()
	rule.ModifiedBy = strings.TrimSpace(actor)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	replaced := false
	for i := range next.Rules {
		if next.Rules[i].ID == rule.ID {
			next.Rules[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		next.Rules = append(next.Rules, rule)
	}

	if errValidate := ValidateTable(next); errValidate != nil {
		return errValidate
	}
	next.Version++
	stampRules(next, actor)

	if errPersist := s.persist(ctx, next, actor); errPersist != nil {
		return errPersist
	}
	s.current.Store(next)
	return nil
}

// Refresh re-reads the active table from the database and swaps it in when
// its version is newer than the snapshot. Used by the reconciler to pick up
// externally-edited tables.
func (s *Store) Refresh(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var row models.PolicyTable
	errFind := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("version DESC").
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStaleReload, errFind)
	}
	if row.Version <= s.current.Load().Version {
		return nil
	}

	table, errDecode := decodeTable(row.Payload, row.Version)
	if errDecode != nil {
		return fmt.Errorf("%w: %v", ErrStaleReload, errDecode)
	}
	if errValidate := ValidateTable(table); errValidate != nil {
		return fmt.Errorf("%w: %v", ErrStaleReload, errValidate)
	}
	s.current.Store(table)
	return nil
}

// persist writes the table as the single active row. No-op without a DB.
func (s *Store) persist(ctx context.Context, table *Table, actor string) error {
	if s.db == nil {
		return nil
	}

	payload, errMarshal := json.Marshal(table)
	if errMarshal != nil {
		return errMarshal
	}
	row := models.PolicyTable{
		Version:    table.Version,
		Active:     true,
		Payload:    datatypes.JSON(payload),
		ModifiedBy: strings.TrimSpace(actor),
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errClear := tx.Model(&models.PolicyTable{}).
			Where("active = ?", true).
			Update("active", false).Error; errClear != nil {
			return errClear
		}
		return tx.Create(&row).Error
	})
}

func decodeTable(payload datatypes.JSON, version int64) (*Table, error) {
	var table Table
	if len(payload) > 0 {
		if errUnmarshal := json.Unmarshal(payload, &table); errUnmarshal != nil {
			return nil, errUnmarshal
		}
	}
	table.Version = version
	return &table, nil
}

func stampRules(table *Table, actor string) {
	now := time.Now().UTC()
	for i := range table.Rules {
		if table.Rules[i].LastModified.IsZero() {
			table.Rules[i].LastModified = now
		}
		if strings.TrimSpace(table.Rules[i].ModifiedBy) == "" {
			table.Rules[i].ModifiedBy = strings.TrimSpace(actor)
		}
	}
}
