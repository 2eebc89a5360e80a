// Package db provides CRUD repository operations for PentryPal data models.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/uuid"
)

// Repository provides CRUD operations for all models.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
// Key is the query string, value is the prepared statement.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	// Try to get from cache first
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	// Prepare and cache
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Store in cache (if already stored by another goroutine, use existing)
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
// Should be called when the Repository is no longer needed.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// ShoppingList Operations
// =====================================================

// CreateShoppingList creates a new shopping list.
// The ID is preserved when set so remote lists keep their server-assigned id.
func (r *Repository) CreateShoppingList(list *models.ShoppingList) error {
	now := time.Now().Unix()
	if list.ID == "" {
		list.ID = models.UUID(uuid.New())
	}
	if list.CreatedAt == 0 {
		list.CreatedAt = now
	}
	if list.UpdatedAt == 0 {
		list.UpdatedAt = now
	}
	if list.Version == 0 {
		list.Version = 1
	}

	query := `
	INSERT INTO shopping_lists (id, name, owner_id, is_deleted, created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, list.ID, list.Name, list.OwnerID, list.IsDeleted,
		list.CreatedAt, list.UpdatedAt, list.Version)
	return err
}

// GetShoppingList retrieves a shopping list by ID.
func (r *Repository) GetShoppingList(id string) (*models.ShoppingList, error) {
	query := `
	SELECT id, name, owner_id, is_deleted, created_at, updated_at, version
	FROM shopping_lists WHERE id = ?
	`
	list := &models.ShoppingList{}
	err := r.db.QueryRow(query, id).Scan(&list.ID, &list.Name, &list.OwnerID,
		&list.IsDeleted, &list.CreatedAt, &list.UpdatedAt, &list.Version)
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ListShoppingLists returns all non-deleted shopping lists.
func (r *Repository) ListShoppingLists() ([]*models.ShoppingList, error) {
	query := `
	SELECT id, name, owner_id, is_deleted, created_at, updated_at, version
	FROM shopping_lists WHERE is_deleted = 0 ORDER BY created_at
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []*models.ShoppingList
	for rows.Next() {
		list := &models.ShoppingList{}
		if err := rows.Scan(&list.ID, &list.Name, &list.OwnerID, &list.IsDeleted,
			&list.CreatedAt, &list.UpdatedAt, &list.Version); err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

// UpdateShoppingList updates a shopping list.
func (r *Repository) UpdateShoppingList(list *models.ShoppingList) error {
	query := `
	UPDATE shopping_lists SET name = ?, is_deleted = ?, updated_at = ?, version = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, list.Name, list.IsDeleted, list.UpdatedAt, list.Version, list.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteShoppingList soft-deletes a shopping list and its items.
func (r *Repository) DeleteShoppingList(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.Exec("UPDATE shopping_lists SET is_deleted = 1, updated_at = ? WHERE id = ?", now, id); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE list_items SET is_deleted = 1, updated_at = ? WHERE list_id = ?", now, id); err != nil {
		return err
	}
	return tx.Commit()
}

// =====================================================
// ListItem Operations
// =====================================================

// CreateListItem creates a new list item.
func (r *Repository) CreateListItem(item *models.ListItem) error {
	now := time.Now().Unix()
	if item.ID == "" {
		item.ID = models.UUID(uuid.New())
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = now
	}
	if item.UpdatedAt == 0 {
		item.UpdatedAt = now
	}
	if item.Version == 0 {
		item.Version = 1
	}

	query := `
	INSERT INTO list_items (id, list_id, name, quantity, unit, category, checked,
		is_deleted, created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, item.ID, item.ListID, item.Name, item.Quantity,
		item.Unit, item.Category, item.Checked, item.IsDeleted,
		item.CreatedAt, item.UpdatedAt, item.Version)
	return err
}

// GetListItem retrieves a list item by ID.
func (r *Repository) GetListItem(id string) (*models.ListItem, error) {
	query := `
	SELECT id, list_id, name, quantity, unit, category, checked, is_deleted,
		created_at, updated_at, version
	FROM list_items WHERE id = ?
	`
	item := &models.ListItem{}
	err := r.db.QueryRow(query, id).Scan(&item.ID, &item.ListID, &item.Name,
		&item.Quantity, &item.Unit, &item.Category, &item.Checked, &item.IsDeleted,
		&item.CreatedAt, &item.UpdatedAt, &item.Version)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItemsByList returns all non-deleted items on a list, oldest first.
func (r *Repository) ListItemsByList(listID string) ([]*models.ListItem, error) {
	query := `
	SELECT id, list_id, name, quantity, unit, category, checked, is_deleted,
		created_at, updated_at, version
	FROM list_items WHERE list_id = ? AND is_deleted = 0 ORDER BY created_at
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.ListItem
	for rows.Next() {
		item := &models.ListItem{}
		if err := rows.Scan(&item.ID, &item.ListID, &item.Name, &item.Quantity,
			&item.Unit, &item.Category, &item.Checked, &item.IsDeleted,
			&item.CreatedAt, &item.UpdatedAt, &item.Version); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateListItem updates a list item.
func (r *Repository) UpdateListItem(item *models.ListItem) error {
	query := `
	UPDATE list_items SET name = ?, quantity = ?, unit = ?, category = ?,
		checked = ?, is_deleted = ?, updated_at = ?, version = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, item.Name, item.Quantity, item.Unit, item.Category,
		item.Checked, item.IsDeleted, item.UpdatedAt, item.Version, item.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteListItem soft-deletes a list item.
func (r *Repository) DeleteListItem(id string) error {
	_, err := r.db.Exec("UPDATE list_items SET is_deleted = 1, updated_at = ? WHERE id = ?",
		time.Now().Unix(), id)
	return err
}

// =====================================================
// PantryItem Operations
// =====================================================

// CreatePantryItem creates a new pantry item.
func (r *Repository) CreatePantryItem(item *models.PantryItem) error {
	now := time.Now().Unix()
	if item.ID == "" {
		item.ID = models.UUID(uuid.New())
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = now
	}
	if item.UpdatedAt == 0 {
		item.UpdatedAt = now
	}
	if item.Version == 0 {
		item.Version = 1
	}

	query := `
	INSERT INTO pantry_items (id, name, quantity, unit, location, expires_at,
		is_deleted, created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, item.ID, item.Name, item.Quantity, item.Unit,
		item.Location, item.ExpiresAt, item.IsDeleted,
		item.CreatedAt, item.UpdatedAt, item.Version)
	return err
}

// GetPantryItem retrieves a pantry item by ID.
func (r *Repository) GetPantryItem(id string) (*models.PantryItem, error) {
	query := `
	SELECT id, name, quantity, unit, location, expires_at, is_deleted,
		created_at, updated_at, version
	FROM pantry_items WHERE id = ?
	`
	item := &models.PantryItem{}
	err := r.db.QueryRow(query, id).Scan(&item.ID, &item.Name, &item.Quantity,
		&item.Unit, &item.Location, &item.ExpiresAt, &item.IsDeleted,
		&item.CreatedAt, &item.UpdatedAt, &item.Version)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListPantryItems returns all non-deleted pantry items.
func (r *Repository) ListPantryItems() ([]*models.PantryItem, error) {
	query := `
	SELECT id, name, quantity, unit, location, expires_at, is_deleted,
		created_at, updated_at, version
	FROM pantry_items WHERE is_deleted = 0 ORDER BY name
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.PantryItem
	for rows.Next() {
		item := &models.PantryItem{}
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.Unit,
			&item.Location, &item.ExpiresAt, &item.IsDeleted,
			&item.CreatedAt, &item.UpdatedAt, &item.Version); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdatePantryItem updates a pantry item.
func (r *Repository) UpdatePantryItem(item *models.PantryItem) error {
	query := `
	UPDATE pantry_items SET name = ?, quantity = ?, unit = ?, location = ?,
		expires_at = ?, is_deleted = ?, updated_at = ?, version = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, item.Name, item.Quantity, item.Unit, item.Location,
		item.ExpiresAt, item.IsDeleted, item.UpdatedAt, item.Version, item.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeletePantryItem soft-deletes a pantry item.
func (r *Repository) DeletePantryItem(id string) error {
	_, err := r.db.Exec("UPDATE pantry_items SET is_deleted = 1, updated_at = ? WHERE id = ?",
		time.Now().Unix(), id)
	return err
}

// =====================================================
// Session Operations
// =====================================================

// SaveSession stores the session, replacing any existing one.
func (r *Repository) SaveSession(session *models.Session) error {
	session.UpdatedAt = time.Now().Unix()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Single-session model: any previous session is replaced
	if _, err := tx.Exec("DELETE FROM session"); err != nil {
		return err
	}

	query := `
	INSERT INTO session (user_id, access_token, refresh_token, expires_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(query, session.UserID, session.AccessToken,
		session.RefreshToken, session.ExpiresAt, session.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSession retrieves the stored session, if any.
func (r *Repository) GetSession() (*models.Session, error) {
	query := `SELECT user_id, access_token, refresh_token, expires_at, updated_at FROM session LIMIT 1`
	session := &models.Session{}
	err := r.db.QueryRow(query).Scan(&session.UserID, &session.AccessToken,
		&session.RefreshToken, &session.ExpiresAt, &session.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ClearSession removes the stored session.
func (r *Repository) ClearSession() error {
	_, err := r.db.Exec("DELETE FROM session")
	return err
}

// =====================================================
// ChangeLog Operations
// =====================================================

// CreateChangeLog records a mutation in the change log.
func (r *Repository) CreateChangeLog(entry *models.ChangeLog) error {
	if entry.ID == "" {
		entry.ID = models.UUID(uuid.New())
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}

	query := `
	INSERT INTO change_log (id, entity_id, entity, operation, version, timestamp)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, entry.ID, entry.EntityID, entry.Entity,
		entry.Operation, entry.Version, entry.Timestamp)
	return err
}

// ListChangeLogSince returns change log entries at or after the given timestamp.
func (r *Repository) ListChangeLogSince(since int64) ([]*models.ChangeLog, error) {
	query := `
	SELECT id, entity_id, entity, operation, version, timestamp
	FROM change_log WHERE timestamp >= ? ORDER BY timestamp
	`
	rows, err := r.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ChangeLog
	for rows.Next() {
		entry := &models.ChangeLog{}
		if err := rows.Scan(&entry.ID, &entry.EntityID, &entry.Entity,
			&entry.Operation, &entry.Version, &entry.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PruneChangeLog deletes change log entries recorded before the cutoff.
func (r *Repository) PruneChangeLog(before int64) error {
	_, err := r.db.Exec(`DELETE FROM change_log WHERE timestamp < ?`, before)
	return err
}

// =====================================================
// ConflictLog Operations
// =====================================================

// CreateConflictLog records a resolved conflict.
func (r *Repository) CreateConflictLog(entry *models.ConflictLog) error {
	if entry.ID == "" {
		entry.ID = models.UUID(uuid.New())
	}
	if entry.DetectedAt == 0 {
		entry.DetectedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO conflict_log (id, entity_id, local_timestamp, remote_timestamp, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, entry.ID, entry.EntityID, entry.LocalTimestamp,
		entry.RemoteTimestamp, entry.Resolution, entry.DetectedAt)
	return err
}

// ListConflictLog returns the most recent conflict log entries.
func (r *Repository) ListConflictLog(limit int) ([]*models.ConflictLog, error) {
	query := `
	SELECT id, entity_id, local_timestamp, remote_timestamp, resolution, detected_at
	FROM conflict_log ORDER BY detected_at DESC LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ConflictLog
	for rows.Next() {
		entry := &models.ConflictLog{}
		if err := rows.Scan(&entry.ID, &entry.EntityID, &entry.LocalTimestamp,
			&entry.RemoteTimestamp, &entry.Resolution, &entry.DetectedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =====================================================
// StateSnapshot Operations
// =====================================================

// SaveSnapshot upserts a persisted state slice blob.
func (r *Repository) SaveSnapshot(slice string, payload json.RawMessage) error {
	query := `
	INSERT INTO state_snapshots (slice, payload, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(slice) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(slice, string(payload), time.Now().Unix())
	return err
}

// GetSnapshot retrieves a persisted state slice blob.
func (r *Repository) GetSnapshot(slice string) (json.RawMessage, error) {
	var payload string
	err := r.db.QueryRow("SELECT payload FROM state_snapshots WHERE slice = ?", slice).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// DeleteSnapshots removes all persisted slices (used on logout/reset).
func (r *Repository) DeleteSnapshots() error {
	_, err := r.db.Exec("DELETE FROM state_snapshots")
	return err
}
