// Package postgres implements the remote gateway on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const (
	floristColumns    = `id, name, slug, email, phone, address, description, is_active, created_at`
	promotionColumns  = `id, florist_id, title, description, original_price, discount, final_price, end_date, image, contact, is_active, created_at`
	subscriberColumns = `id, florist_id, name, email, subscribed_at`
)

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return db, nil
}

// Gateway implements storage.Gateway on three tables. Identifiers are
// generated here, not by the database.
type Gateway struct {
	db    *sql.DB
	newID func() string
}

var _ storage.Gateway = (*Gateway)(nil)

func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{db: db, newID: uuid.NewString}
}

// EnsureSchema creates the tables and indexes when missing.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- Florists ---

func scanFlorist(row rowScanner) (florist.Florist, error) {
	var f florist.Florist
	err := row.Scan(&f.ID, &f.Name, &f.Slug, &f.Email, &f.Phone, &f.Address, &f.Description, &f.Active, &f.CreatedAt)
	return f, err
}

func (g *Gateway) ListFlorists(ctx context.Context) ([]florist.Florist, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT `+floristColumns+` FROM florists ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list florists: %w", err)
	}
	defer rows.Close()

	out := make([]florist.Florist, 0)
	for rows.Next() {
		f, err := scanFlorist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan florist: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (g *Gateway) GetFlorist(ctx context.Context, id string) (florist.Florist, error) {
	row := g.db.QueryRowContext(ctx, `SELECT `+floristColumns+` FROM florists WHERE id = $1`, id)
	f, err := scanFlorist(row)
	if err != nil {
		return florist.Florist{}, translate(err, "florist", id)
	}
	return f, nil
}

func (g *Gateway) InsertFlorist(ctx context.Context, f florist.Florist) (florist.Florist, error) {
	f.ID = g.newID()
	row := g.db.QueryRowContext(ctx,
		`INSERT INTO florists (`+floristColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+floristColumns,
		f.ID, f.Name, f.Slug, f.Email, f.Phone, f.Address, f.Description, f.Active, f.CreatedAt,
	)
	created, err := scanFlorist(row)
	if err != nil {
		return florist.Florist{}, translate(err, "florist", f.ID)
	}
	return created, nil
}

func (g *Gateway) UpdateFlorist(ctx context.Context, id string, patch florist.FloristPatch) (florist.Florist, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return g.GetFlorist(ctx, id)
	}

	keys := florist.SortedKeys(fields)
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = $%d", k, i+1))
		args = append(args, fields[k])
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE florists SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), floristColumns)
	updated, err := scanFlorist(g.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return florist.Florist{}, translate(err, "florist", id)
	}
	return updated, nil
}

// DeleteFlorist removes the florist; promotions and subscribers cascade.
func (g *Gateway) DeleteFlorist(ctx context.Context, id string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM florists WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete florist %s: %w", id, err)
	}
	return nil
}

// --- Promotions ---

func scanPromotion(row rowScanner) (florist.Promotion, error) {
	var p florist.Promotion
	var contact []byte
	err := row.Scan(&p.ID, &p.FloristID, &p.Title, &p.Description, &p.OriginalPrice, &p.Discount,
		&p.FinalPrice, &p.EndDate, &p.Image, &contact, &p.Active, &p.CreatedAt)
	if err != nil {
		return florist.Promotion{}, err
	}
	if len(contact) > 0 {
		var c florist.Contact
		if err := json.Unmarshal(contact, &c); err != nil {
			return florist.Promotion{}, fmt.Errorf("failed to decode contact of promotion %s: %w", p.ID, err)
		}
		p.Contact = &c
	}
	return p, nil
}

func encodeContact(c *florist.Contact) (any, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode contact: %w", err)
	}
	return string(b), nil
}

func (g *Gateway) ListPromotions(ctx context.Context, floristID string) ([]florist.Promotion, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE florist_id = $1 ORDER BY created_at DESC`, floristID)
	if err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	defer rows.Close()

	out := make([]florist.Promotion, 0)
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan promotion: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (g *Gateway) InsertPromotion(ctx context.Context, p florist.Promotion) (florist.Promotion, error) {
	p.ID = g.newID()
	p.Reprice()
	contact, err := encodeContact(p.Contact)
	if err != nil {
		return florist.Promotion{}, err
	}

	row := g.db.QueryRowContext(ctx,
		`INSERT INTO promotions (`+promotionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING `+promotionColumns,
		p.ID, p.FloristID, p.Title, p.Description, p.OriginalPrice, p.Discount, p.FinalPrice,
		p.EndDate, p.Image, contact, p.Active, p.CreatedAt,
	)
	created, err := scanPromotion(row)
	if err != nil {
		return florist.Promotion{}, translate(err, "promotion", p.ID)
	}
	return created, nil
}

// UpdatePromotion locks the row, applies patch and writes the merged record
// back, so the final price is recomputed from the stored values.
func (g *Gateway) UpdatePromotion(ctx context.Context, floristID, id string, patch florist.PromotionPatch) (florist.Promotion, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return florist.Promotion{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE id = $1 AND florist_id = $2 FOR UPDATE`, id, floristID)
	p, err := scanPromotion(row)
	if err != nil {
		return florist.Promotion{}, translate(err, "promotion", id)
	}

	patch.Apply(&p)
	contact, err := encodeContact(p.Contact)
	if err != nil {
		return florist.Promotion{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE promotions SET title = $1, description = $2, original_price = $3, discount = $4, final_price = $5, end_date = $6, image = $7, contact = $8, is_active = $9 WHERE id = $10`,
		p.Title, p.Description, p.OriginalPrice, p.Discount, p.FinalPrice, p.EndDate, p.Image, contact, p.Active, id,
	)
	if err != nil {
		return florist.Promotion{}, fmt.Errorf("failed to update promotion %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return florist.Promotion{}, fmt.Errorf("failed to commit promotion %s: %w", id, err)
	}
	return p, nil
}

func (g *Gateway) DeletePromotion(ctx context.Context, floristID, id string) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM promotions WHERE id = $1 AND florist_id = $2`, id, floristID); err != nil {
		return fmt.Errorf("failed to delete promotion %s: %w", id, err)
	}
	return nil
}

// --- Subscribers ---

func scanSubscriber(row rowScanner) (florist.Subscriber, error) {
	var s florist.Subscriber
	err := row.Scan(&s.ID, &s.FloristID, &s.Name, &s.Email, &s.SubscribedAt)
	return s, err
}

func (g *Gateway) ListSubscribers(ctx context.Context, floristID string) ([]florist.Subscriber, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE florist_id = $1 ORDER BY subscribed_at DESC`, floristID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	out := make([]florist.Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertSubscriber fails with storage.ErrConflict when the email already
// subscribes to the florist.
func (g *Gateway) InsertSubscriber(ctx context.Context, s florist.Subscriber) (florist.Subscriber, error) {
	s.ID = g.newID()
	row := g.db.QueryRowContext(ctx,
		`INSERT INTO subscribers (`+subscriberColumns+`) VALUES ($1, $2, $3, $4, $5) RETURNING `+subscriberColumns,
		s.ID, s.FloristID, s.Name, s.Email, s.SubscribedAt,
	)
	created, err := scanSubscriber(row)
	if err != nil {
		return florist.Subscriber{}, translate(err, "subscriber", s.Email)
	}
	return created, nil
}

// translate maps missing rows and unique violations onto the storage sentinels.
func translate(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrConflict)
	}
	return fmt.Errorf("%s %s: %w", kind, id, err)
}
