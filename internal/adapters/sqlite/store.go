package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Store is the points ledger and nickname directory, both kept in one
// SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ports.PointsLedger = (*Store)(nil)
	_ ports.NameResolver = (*Store)(nil)
)

type Balance struct {
	Player    domain.PlayerID
	Name      string
	Points    int
	Awards    int
	UpdatedAt time.Time
}

func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite dsn is empty")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS point_balances (
  player_id TEXT PRIMARY KEY,
  points INTEGER NOT NULL DEFAULT 0,
  awards INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS point_awards (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  player_id TEXT NOT NULL,
  amount INTEGER NOT NULL,
  at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_point_awards_player_at ON point_awards(player_id, at);

CREATE TABLE IF NOT EXISTS nicknames (
  player_id TEXT PRIMARY KEY,
  nickname TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`)
	return errors.Wrap(err, "migrate sqlite schema")
}

// Award adds amount to the player's balance and records the award.
func (s *Store) Award(ctx context.Context, player domain.PlayerID, amount int) error {
	if player == "" {
		return errors.New("player id is required")
	}
	if amount <= 0 {
		return errors.Errorf("award amount must be positive, got %d", amount)
	}

	at := s.now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin award transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO point_awards (player_id, amount, at) VALUES (?, ?, ?)`, string(player), amount, at); err != nil {
		return errors.Wrap(err, "insert point award")
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO point_balances (player_id, points, awards, updated_at) VALUES (?, ?, 1, ?)
ON CONFLICT(player_id) DO UPDATE SET
  points = points + excluded.points,
  awards = awards + 1,
  updated_at = excluded.updated_at`, string(player), amount, at); err != nil {
		return errors.Wrap(err, "update point balance")
	}

	return errors.Wrap(tx.Commit(), "commit award transaction")
}

func (s *Store) Balance(ctx context.Context, player domain.PlayerID) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT points FROM point_balances WHERE player_id = ?`, string(player))
	var points int
	switch err := row.Scan(&points); err {
	case nil:
		return points, nil
	case sql.ErrNoRows:
		return 0, nil
	default:
		return 0, errors.Wrap(err, "query point balance")
	}
}

// Top lists the highest balances with nicknames where known.
func (s *Store) Top(ctx context.Context, limit int) ([]Balance, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT b.player_id, COALESCE(n.nickname, ''), b.points, b.awards, b.updated_at
FROM point_balances b
LEFT JOIN nicknames n ON n.player_id = b.player_id
ORDER BY b.points DESC, b.player_id ASC
LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query top balances")
	}
	defer func() { _ = rows.Close() }()

	var out []Balance
	for rows.Next() {
		var (
			b         Balance
			player    string
			updatedAt string
		)
		if err := rows.Scan(&player, &b.Name, &b.Points, &b.Awards, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan balance row")
		}
		b.Player = domain.PlayerID(player)
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			b.UpdatedAt = t
		}
		out = append(out, b)
	}

	return out, errors.Wrap(rows.Err(), "iterate balance rows")
}

func (s *Store) DisplayName(ctx context.Context, player domain.PlayerID) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT nickname FROM nicknames WHERE player_id = ?`, string(player))
	var name string
	switch err := row.Scan(&name); err {
	case nil:
		return name, nil
	case sql.ErrNoRows:
		return "", domain.ErrNoDisplayName
	default:
		return "", errors.Wrap(err, "query nickname")
	}
}

func (s *Store) SetDisplayName(ctx context.Context, player domain.PlayerID, name string) error {
	name = strings.TrimSpace(name)
	if player == "" || name == "" {
		return errors.New("player id and nickname are required")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO nicknames (player_id, nickname, updated_at) VALUES (?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET nickname = excluded.nickname, updated_at = excluded.updated_at`,
		string(player), name, s.now().UTC().Format(time.RFC3339Nano))

	return errors.Wrap(err, "upsert nickname")
}
