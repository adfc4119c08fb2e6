package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/azure/social-listening/internal/models"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps mentions in a local SQLite database
type SQLiteStore struct {
	conn *sql.DB
}

var _ MentionStore = (*SQLiteStore)(nil)

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps ON CONFLICT inserts serialized and makes :memory: usable.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		url TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS mentions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		summary TEXT,
		url TEXT NOT NULL,
		source TEXT NOT NULL,
		author TEXT,
		published_at DATETIME,
		fetched_at DATETIME NOT NULL,
		sentiment REAL,
		CONSTRAINT uq_mentions_url UNIQUE (url)
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}
	if err := s.addThreadColumns(); err != nil {
		return err
	}
	_, err := s.conn.Exec(`CREATE INDEX IF NOT EXISTS ix_mentions_thread ON mentions (thread_external_id)`)
	return err
}

// addThreadColumns upgrades databases created before threading was tracked.
func (s *SQLiteStore) addThreadColumns() error {
	rows, err := s.conn.Query("PRAGMA table_info('mentions')")
	if err != nil {
		return err
	}
	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		cols[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range threadColumns {
		if cols[col.name] {
			continue
		}
		if _, err := s.conn.Exec(fmt.Sprintf("ALTER TABLE mentions ADD COLUMN %s %s", col.name, col.sqlType)); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
		logrus.Infof("Added column mentions.%s", col.name)
	}
	return nil
}

var threadColumns = []struct {
	name    string
	sqlType string
}{
	{"external_id", "TEXT"},
	{"parent_external_id", "TEXT"},
	{"thread_external_id", "TEXT"},
	{"reply_depth", "INTEGER"},
}

// AddMention inserts m unless its URL is already stored.
func (s *SQLiteStore) AddMention(ctx context.Context, m *models.Mention) AddResult {
	if err := m.Validate(); err != nil {
		return AddResult{Outcome: Failed, Err: err}
	}
	fetchedAt := time.Now().UTC()
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO mentions (title, summary, url, source, author, published_at, fetched_at, sentiment,
			external_id, parent_external_id, thread_external_id, reply_depth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		nullable(m.Title), nullable(m.Summary), m.URL, m.Source, nullable(m.Author),
		nullableTime(m.PublishedAt), fetchedAt, nullable(m.Sentiment),
		nullable(m.ExternalID), nullable(m.ParentExternalID), nullable(m.ThreadExternalID), nullable(m.ReplyDepth))
	if err != nil {
		return AddResult{Outcome: Failed, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return AddResult{Outcome: Failed, Err: err}
	}
	if affected == 0 {
		return AddResult{Outcome: DuplicateSkipped}
	}
	id, _ := res.LastInsertId()
	m.ID = id
	m.FetchedAt = fetchedAt
	return AddResult{Outcome: Stored, ID: id}
}

// ListMentions returns mentions newest first, undated ones last.
func (s *SQLiteStore) ListMentions(ctx context.Context, filter models.MentionFilter) ([]models.Mention, error) {
	filter = filter.Normalize()
	query := `SELECT id, title, summary, url, source, author, published_at, fetched_at, sentiment,
		external_id, parent_external_id, thread_external_id, reply_depth FROM mentions WHERE 1=1`
	var args []any
	if filter.Query != "" {
		like := "%" + strings.ToLower(filter.Query) + "%"
		query += " AND (LOWER(title) LIKE ? OR LOWER(summary) LIKE ?)"
		args = append(args, like, like)
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	query += " ORDER BY published_at IS NULL, published_at DESC, fetched_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mentions []models.Mention
	for rows.Next() {
		var (
			m                              models.Mention
			title, summary, author         sql.NullString
			externalID, parentID, threadID sql.NullString
			publishedAt                    sql.NullTime
			sentiment                      sql.NullFloat64
			depth                          sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &title, &summary, &m.URL, &m.Source, &author, &publishedAt, &m.FetchedAt,
			&sentiment, &externalID, &parentID, &threadID, &depth); err != nil {
			return nil, err
		}
		m.Title = fromNullString(title)
		m.Summary = fromNullString(summary)
		m.Author = fromNullString(author)
		m.ExternalID = fromNullString(externalID)
		m.ParentExternalID = fromNullString(parentID)
		m.ThreadExternalID = fromNullString(threadID)
		if publishedAt.Valid {
			t := publishedAt.Time
			m.PublishedAt = &t
		}
		if sentiment.Valid {
			v := sentiment.Float64
			m.Sentiment = &v
		}
		if depth.Valid {
			d := int(depth.Int64)
			m.ReplyDepth = &d
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// AddSource registers a catalog entry. Returns the ID.
func (s *SQLiteStore) AddSource(ctx context.Context, src *models.Source) (int64, error) {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	res, err := s.conn.ExecContext(ctx, "INSERT INTO sources (name, type, url, created_at) VALUES (?, ?, ?, ?)",
		src.Name, src.Type, nullable(src.URL), src.CreatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	src.ID = id
	return id, nil
}

// ListSources returns all catalog entries ordered by name.
func (s *SQLiteStore) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id, name, type, url, created_at FROM sources ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Source
	for rows.Next() {
		var src models.Source
		var u sql.NullString
		if err := rows.Scan(&src.ID, &src.Name, &src.Type, &u, &src.CreatedAt); err != nil {
			return nil, err
		}
		src.URL = fromNullString(u)
		out = append(out, src)
	}
	return out, rows.Err()
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
