package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/datashop/datashop/internal/capture"
	"github.com/datashop/datashop/internal/errors"
	"github.com/datashop/datashop/internal/platform"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS captures (
	id          BIGSERIAL PRIMARY KEY,
	platform    TEXT NOT NULL,
	item_id     TEXT NOT NULL,
	shop_id     TEXT NOT NULL DEFAULT '',
	captured_at TIMESTAMPTZ NOT NULL,
	document    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS captures_platform_item_idx ON captures (platform, item_id, id);
CREATE TABLE IF NOT EXISTS reviews (
	id       TEXT PRIMARY KEY,
	document JSONB NOT NULL
);`

// PostgresStore keeps captures in one table partitioned by the platform column.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens dsn with the lib/pq driver.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.NewStoreFault("", "open postgres", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.NewStoreFault("", "ping postgres", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, c *capture.Capture) (string, error) {
	if c == nil || c.ItemID == "" {
		return "", errors.NewWrite("", "capture has no item id", nil)
	}
	data, err := MarshalDocument(c.Document)
	if err != nil {
		return "", errors.NewWrite(c.Platform.String(), "encode capture", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO captures (platform, item_id, shop_id, captured_at, document) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		c.Platform.Collection(), capture.CanonicalID(c.ItemID), c.ShopID, c.CapturedAt, data).Scan(&id)
	if err != nil {
		return "", errors.NewWrite(c.Platform.String(), "insert capture", err)
	}
	return fmt.Sprintf("postgres://captures/%d", id), nil
}

func (s *PostgresStore) DistinctIDs(ctx context.Context, p platform.Platform) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT item_id FROM captures WHERE platform = $1 GROUP BY item_id ORDER BY MIN(id)",
		p.Collection())
	if err != nil {
		return nil, errors.NewStoreFault(p.String(), "distinct item ids", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewStoreFault(p.String(), "scan item id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreFault(p.String(), "iterate item ids", err)
	}
	return ids, nil
}

func (s *PostgresStore) Captures(ctx context.Context, p platform.Platform, itemID string) ([]capture.Capture, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT shop_id, captured_at, document FROM captures WHERE platform = $1 AND item_id = $2 ORDER BY id",
		p.Collection(), capture.CanonicalID(itemID))
	if err != nil {
		return nil, errors.NewStoreFault(p.String(), "query captures", err)
	}
	defer rows.Close()

	out := []capture.Capture{}
	for rows.Next() {
		var (
			shopID     string
			capturedAt time.Time
			raw        []byte
		)
		if err := rows.Scan(&shopID, &capturedAt, &raw); err != nil {
			return nil, errors.NewStoreFault(p.String(), "scan capture", err)
		}
		doc, err := capture.DecodeJSON(raw)
		if err != nil {
			return nil, errors.NewStoreFault(p.String(), "decode capture", err)
		}
		c, err := capture.FromDocument(p, doc)
		if err != nil {
			return nil, errors.NewStoreFault(p.String(), "decode capture", err)
		}
		c.ShopID = shopID
		if c.CapturedAt.IsZero() {
			c.CapturedAt = capturedAt
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreFault(p.String(), "iterate captures", err)
	}
	return out, nil
}

func (s *PostgresStore) Review(ctx context.Context, productID string) (capture.Document, error) {
	productID = capture.CanonicalID(productID)
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM reviews WHERE id = $1", productID).Scan(&raw)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("", "no review for "+productID)
	}
	if err != nil {
		return nil, errors.NewStoreFault("", "query review", err)
	}
	doc, err := capture.DecodeJSON(raw)
	if err != nil {
		return nil, errors.NewStoreFault("", "decode review", err)
	}
	return doc, nil
}

func (s *PostgresStore) SaveReview(ctx context.Context, productID string, doc capture.Document) error {
	productID = capture.CanonicalID(productID)
	data, err := MarshalDocument(doc)
	if err != nil {
		return errors.NewWrite("", "encode review", err)
	}
	query := `
		INSERT INTO reviews (id, document) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`
	if _, err := s.db.ExecContext(ctx, query, productID, data); err != nil {
		return errors.NewWrite("", "upsert review", err)
	}
	return nil
}

func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}
