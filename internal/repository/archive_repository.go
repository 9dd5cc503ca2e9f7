package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
)

// ErrSlugTaken is returned when a write violates the unique slug constraint.
var ErrSlugTaken = errors.New("archive slug already taken")

const (
	slugConstraint  = "archive_items_slug_key"
	uniqueViolation = "23505"
)

const archiveColumns = `id, title, slug, category, status, author_id, author_name, thumbnail,
       body_content, tags, attributes, created_at, updated_at`

// RetryPolicy bounds retries of read queries on transient connection errors.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

type archiveRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Slug        string         `db:"slug"`
	Category    string         `db:"category"`
	Status      string         `db:"status"`
	AuthorID    string         `db:"author_id"`
	AuthorName  string         `db:"author_name"`
	Thumbnail   sql.NullString `db:"thumbnail"`
	BodyContent []byte         `db:"body_content"`
	Tags        pq.StringArray `db:"tags"`
	Attributes  []byte         `db:"attributes"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// ArchiveRepository persists archive items. Each item is one row: envelope
// columns plus the variant payload in the attributes JSONB column.
type ArchiveRepository struct {
	db       *sqlx.DB
	registry *taxonomy.Registry
	retry    RetryPolicy
}

// NewArchiveRepository constructs the repository.
func NewArchiveRepository(db *sqlx.DB, registry *taxonomy.Registry, retry RetryPolicy) *ArchiveRepository {
	if registry == nil {
		registry = taxonomy.Default()
	}
	if retry.Attempts < 0 {
		retry.Attempts = 0
	}
	if retry.Backoff <= 0 {
		retry.Backoff = 100 * time.Millisecond
	}
	return &ArchiveRepository{db: db, registry: registry, retry: retry}
}

// Ping checks store connectivity.
func (r *ArchiveRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create inserts a new item. Slug collisions surface as ErrSlugTaken.
func (r *ArchiveRepository) Create(ctx context.Context, item *models.ArchiveItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt

	row, err := toRow(item)
	if err != nil {
		return err
	}
	const query = `INSERT INTO archive_items
	(id, title, slug, category, status, author_id, author_name, thumbnail, body_content, tags, attributes, created_at, updated_at)
	VALUES (:id, :title, :slug, :category, :status, :author_id, :author_name, :thumbnail, :body_content, :tags, :attributes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return mapWriteError("create archive item", err)
	}
	return nil
}

// GetByID retrieves one item by storage id.
func (r *ArchiveRepository) GetByID(ctx context.Context, id string) (*models.ArchiveItem, error) {
	query := `SELECT ` + archiveColumns + ` FROM archive_items WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetBySlug retrieves one item by slug regardless of status.
func (r *ArchiveRepository) GetBySlug(ctx context.Context, slug string) (*models.ArchiveItem, error) {
	query := `SELECT ` + archiveColumns + ` FROM archive_items WHERE slug = $1`
	return r.getOne(ctx, query, slug)
}

func (r *ArchiveRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.ArchiveItem, error) {
	var row archiveRow
	err := r.withReadRetry(ctx, func() error {
		return r.db.GetContext(ctx, &row, query, arg)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get archive item: %w", err)
	}
	return r.toItem(row)
}

// List returns items matching the filter, newest first. A sub-type filter
// matches the value on any candidate sub-type field.
func (r *ArchiveRepository) List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchiveItem, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + archiveColumns + ` FROM archive_items`)
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)

	if len(filter.CategoryKeys) > 0 {
		args = append(args, pq.Array(filter.CategoryKeys))
		conditions = append(conditions, fmt.Sprintf("%s = ANY($%d)", categoryKeyExpr, len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if sub := strings.TrimSpace(filter.SubType); sub != "" {
		fields := filter.SubTypeFields
		if len(fields) == 0 {
			fields = r.registry.SubTypeFields()
		}
		args = append(args, sub)
		placeholder := len(args)
		disjunction := make([]string, 0, len(fields))
		for _, field := range fields {
			if !r.registry.IsSubTypeField(field) {
				return nil, fmt.Errorf("list archive items: %q is not a sub-type field", field)
			}
			disjunction = append(disjunction, fmt.Sprintf("lower(btrim(attributes->>'%s')) = lower($%d)", field, placeholder))
		}
		conditions = append(conditions, "("+strings.Join(disjunction, " OR ")+")")
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id ASC")

	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset))
	}

	return r.selectItems(ctx, "list archive items", builder.String(), args...)
}

// DistinctValues returns the sorted, non-blank distinct values stored under
// a sub-type field for the given category keys. Drafts are included.
func (r *ArchiveRepository) DistinctValues(ctx context.Context, field string, categoryKeys []string) ([]string, error) {
	if !r.registry.IsSubTypeField(field) {
		return nil, fmt.Errorf("distinct values: %q is not a sub-type field", field)
	}
	query := fmt.Sprintf(`SELECT DISTINCT btrim(attributes->>'%[1]s') AS value FROM archive_items
	WHERE %[2]s = ANY($1) AND coalesce(btrim(attributes->>'%[1]s'), '') <> ''
	ORDER BY value`, field, categoryKeyExpr)

	var values []string
	err := r.withReadRetry(ctx, func() error {
		values = values[:0]
		return r.db.SelectContext(ctx, &values, query, pq.Array(categoryKeys))
	})
	if err != nil {
		return nil, fmt.Errorf("distinct %s values: %w", field, err)
	}
	return values, nil
}

// Search returns every item matching the predicate. Ordering for display is
// applied by the caller over the full candidate set.
func (r *ArchiveRepository) Search(ctx context.Context, predicate SearchPredicate) ([]models.ArchiveItem, error) {
	query := `SELECT ` + archiveColumns + ` FROM archive_items WHERE ` + predicate.Where + ` ORDER BY created_at DESC, id ASC`
	return r.selectItems(ctx, "search archive items", query, predicate.Args...)
}

// Update replaces the item's mutable fields. When the category changed, the
// discriminator is written first in the same transaction, before the variant
// payload is applied.
func (r *ArchiveRepository) Update(ctx context.Context, item *models.ArchiveItem, categoryChanged bool) error {
	item.UpdatedAt = time.Now().UTC()
	row, err := toRow(item)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update archive item: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if categoryChanged {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `UPDATE archive_items SET category = $2, updated_at = $3 WHERE id = $1`, row.ID, row.Category, row.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update archive category: %w", err)
		}
		if err = ensureAffected(res); err != nil {
			return err
		}
	}

	const query = `UPDATE archive_items SET title = :title, slug = :slug, category = :category, status = :status,
	thumbnail = :thumbnail, body_content = :body_content, tags = :tags, attributes = :attributes, updated_at = :updated_at
	WHERE id = :id`
	var res sql.Result
	res, err = tx.NamedExecContext(ctx, query, row)
	if err != nil {
		err = mapWriteError("update archive item", err)
		return err
	}
	if err = ensureAffected(res); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit archive update: %w", err)
	}
	return nil
}

// Delete removes an item permanently.
func (r *ArchiveRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM archive_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete archive item: %w", err)
	}
	return ensureAffected(res)
}

func (r *ArchiveRepository) selectItems(ctx context.Context, op, query string, args ...interface{}) ([]models.ArchiveItem, error) {
	var rows []archiveRow
	err := r.withReadRetry(ctx, func() error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, query, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items := make([]models.ArchiveItem, 0, len(rows))
	for _, row := range rows {
		item, err := r.toItem(row)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (r *ArchiveRepository) withReadRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || attempt >= r.retry.Attempts || !isTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retry.Backoff * time.Duration(attempt+1)):
		}
	}
}

func (r *ArchiveRepository) toItem(row archiveRow) (*models.ArchiveItem, error) {
	item := &models.ArchiveItem{
		ID:         row.ID,
		Title:      row.Title,
		Slug:       row.Slug,
		Category:   row.Category,
		Status:     models.ItemStatus(row.Status),
		AuthorID:   row.AuthorID,
		AuthorName: row.AuthorName,
		Tags:       []string(row.Tags),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if row.Thumbnail.Valid {
		thumb := row.Thumbnail.String
		item.Thumbnail = &thumb
	}
	if len(row.BodyContent) > 0 {
		if err := json.Unmarshal(row.BodyContent, &item.BodyContent); err != nil {
			return nil, fmt.Errorf("decode body content of %s: %w", row.ID, err)
		}
	}
	if item.BodyContent == nil {
		item.BodyContent = models.BodyContent{}
	}

	family := taxonomy.Family("")
	if desc, err := r.registry.Resolve(row.Category); err == nil {
		family = desc.Family
	}
	details, err := models.DecodeVariant(family, row.Attributes)
	if err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", row.ID, err)
	}
	item.Details = details
	return item, nil
}

func toRow(item *models.ArchiveItem) (archiveRow, error) {
	body := item.BodyContent
	if body == nil {
		body = models.BodyContent{}
	}
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return archiveRow{}, fmt.Errorf("encode body content: %w", err)
	}
	attributes := []byte("{}")
	if item.Details != nil {
		if attributes, err = json.Marshal(item.Details); err != nil {
			return archiveRow{}, fmt.Errorf("encode attributes: %w", err)
		}
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	row := archiveRow{
		ID:          item.ID,
		Title:       item.Title,
		Slug:        item.Slug,
		Category:    item.Category,
		Status:      string(item.Status),
		AuthorID:    item.AuthorID,
		AuthorName:  item.AuthorName,
		BodyContent: bodyJSON,
		Tags:        pq.StringArray(tags),
		Attributes:  attributes,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	if item.Thumbnail != nil {
		row.Thumbnail = sql.NullString{String: *item.Thumbnail, Valid: true}
	}
	return row, nil
}

func ensureAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check archive rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func mapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation && pqErr.Constraint == slugConstraint {
		return ErrSlugTaken
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// connection_exception class and admin shutdown
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01"
	}
	return false
}
