/*
Package postgres implements the store contract on top of a pgx connection
pool. Schema migrations are embedded and applied with goose at startup.
*/
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"parley/internal/app/model"
	"parley/internal/app/store"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store is the Postgres implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database, applies pending migrations, and returns the
// ready store.
func New(ctx context.Context, dsn string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := runMigrations(sqlDB); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// Close implements store.Store.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateUser implements store.Store.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt.Time(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

// GetUserByID implements store.Store.
func (s *Store) GetUserByID(ctx context.Context, id string) (model.User, error) {
	if !isUUID(id) {
		return model.User{}, store.ErrNotFound
	}

	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at
		 FROM users WHERE id = $1`, id))
}

// GetUserByUsername implements store.Store.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at
		 FROM users WHERE username = $1`, username))
}

func (s *Store) scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var createdAt time.Time

	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, err
	}

	u.CreatedAt = model.Timestamp(createdAt)
	return u, nil
}

// CreateRoom implements store.Store.
func (s *Store) CreateRoom(ctx context.Context, r *model.Room) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, $3)`,
		r.ID, r.Name, r.CreatedAt.Time(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

const roomQuery = `
	SELECT r.id, r.name, r.created_at,
	       COALESCE(
	           ARRAY_AGG(m.user_id::text ORDER BY m.joined_at)
	           FILTER (WHERE m.user_id IS NOT NULL),
	           '{}'
	       )
	FROM rooms r
	LEFT JOIN room_members m ON m.room_id = r.id
`

// ListRooms implements store.Store.
func (s *Store) ListRooms(ctx context.Context) ([]model.Room, error) {
	rows, err := s.pool.Query(ctx, roomQuery+` GROUP BY r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

// GetRoom implements store.Store.
func (s *Store) GetRoom(ctx context.Context, id string) (model.Room, error) {
	if !isUUID(id) {
		return model.Room{}, store.ErrNotFound
	}

	row := s.pool.QueryRow(ctx, roomQuery+` WHERE r.id = $1 GROUP BY r.id`, id)

	r, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Room{}, store.ErrNotFound
		}
		return model.Room{}, err
	}

	return r, nil
}

func scanRoom(row pgx.Row) (model.Room, error) {
	var r model.Room
	var createdAt time.Time

	if err := row.Scan(&r.ID, &r.Name, &createdAt, &r.Members); err != nil {
		return model.Room{}, err
	}

	r.CreatedAt = model.Timestamp(createdAt)
	return r, nil
}

// AddMember implements store.Store.
func (s *Store) AddMember(ctx context.Context, roomID, userID string) error {
	if !isUUID(roomID) || !isUUID(userID) {
		return store.ErrNotFound
	}

	// ON CONFLICT DO NOTHING makes re-joining a no-op; the foreign keys
	// reject a missing room or user.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id, joined_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, userID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

// AppendMessage implements store.Store.
func (s *Store) AppendMessage(ctx context.Context, m *model.Message) error {
	if !isUUID(m.RoomID) || !isUUID(m.SenderID) {
		return store.ErrNotFound
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, room_id, sender_id, text, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING seq`,
		m.ID, m.RoomID, m.SenderID, m.Text, m.CreatedAt.Time(),
	).Scan(&m.Seq)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

// ListMessages implements store.Store.
func (s *Store) ListMessages(ctx context.Context, roomID string, limit int) ([]model.Message, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, room_id, sender_id, text, created_at, seq
		 FROM messages
		 WHERE room_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $2`,
		roomID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var createdAt time.Time

		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Text, &createdAt, &m.Seq); err != nil {
			return nil, err
		}

		m.CreatedAt = model.Timestamp(createdAt)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// isUniqueViolation reports a Postgres unique constraint violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation reports a Postgres foreign key violation (23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
