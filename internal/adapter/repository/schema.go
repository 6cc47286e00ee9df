package repository

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Capabilities describes which optional columns the live schema actually
// has. Deployments stop at different migration levels, so writers consult
// this descriptor instead of timing individual INSERTs against column
// errors. It is probed once per process and shared by every repository.
type Capabilities struct {
	mu      sync.RWMutex
	columns map[string]map[string]bool
	db      *gorm.DB
	probed  bool
}

// NewCapabilities creates an unprobed descriptor. The first Has call (or an
// explicit Refresh) runs the information_schema probe.
func NewCapabilities(db *gorm.DB) *Capabilities {
	return &Capabilities{
		columns: make(map[string]map[string]bool),
		db:      db,
	}
}

type columnRow struct {
	TableName  string `gorm:"column:table_name"`
	ColumnName string `gorm:"column:column_name"`
}

// Refresh re-probes information_schema.columns for the public schema.
func (c *Capabilities) Refresh(ctx context.Context) error {
	var rows []columnRow
	err := c.db.WithContext(ctx).
		Raw(`SELECT table_name, column_name
		     FROM information_schema.columns
		     WHERE table_schema = 'public'`).
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to probe schema columns: %w", err)
	}

	columns := make(map[string]map[string]bool, 8)
	for _, row := range rows {
		table, ok := columns[row.TableName]
		if !ok {
			table = make(map[string]bool, 16)
			columns[row.TableName] = table
		}
		table[row.ColumnName] = true
	}

	c.mu.Lock()
	c.columns = columns
	c.probed = true
	c.mu.Unlock()
	return nil
}

// Has reports whether table.column exists in the live schema. The probe is
// lazy; a probe failure degrades to "column absent" rather than blocking
// writes, since every gated column is optional.
func (c *Capabilities) Has(ctx context.Context, table, column string) bool {
	c.mu.RLock()
	probed := c.probed
	c.mu.RUnlock()

	if !probed {
		if err := c.Refresh(ctx); err != nil {
			return false
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.columns[table][column]
}

// Invalidate forces a re-probe on the next Has call. Called after running
// migrations at startup.
func (c *Capabilities) Invalidate() {
	c.mu.Lock()
	c.probed = false
	c.mu.Unlock()
}
