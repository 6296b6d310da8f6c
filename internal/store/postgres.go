package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tapiz/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	const findUser = `SELECT id, display_name FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	const insertUser = `
		INSERT INTO users (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (display_name) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id, display_name
	`
	if err := s.db.QueryRowContext(ctx, insertUser, util.NewID("usr"), name).Scan(&user.ID, &user.DisplayName); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const query = `SELECT id, display_name FROM users WHERE id = $1`
	var user User
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.DisplayName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("user %s not found", id)
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) CreateBoard(ctx context.Context, board Board) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create board: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertBoard = `
		INSERT INTO boards (id, name, created_by)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.ExecContext(ctx, insertBoard, board.ID, board.Name, board.CreatedBy); err != nil {
		return fmt.Errorf("insert board: %w", err)
	}

	// Creator joins as admin.
	const insertMember = `
		INSERT INTO board_members (board_id, user_id, is_admin, private_id)
		VALUES ($1, $2, TRUE, $3)
	`
	if _, err := tx.ExecContext(ctx, insertMember, board.ID, board.CreatedBy, util.NewSecret()); err != nil {
		return fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create board: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, id string) (Board, error) {
	const query = `SELECT id, name, created_by, created_at FROM boards WHERE id = $1`
	var board Board
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&board.ID, &board.Name, &board.CreatedBy, &board.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Board{}, fmt.Errorf("board %s not found", id)
		}
		return Board{}, fmt.Errorf("get board: %w", err)
	}
	return board, nil
}

func (s *PostgresStore) ListBoardsForUser(ctx context.Context, userID string) ([]Board, error) {
	const query = `
		SELECT b.id, b.name, b.created_by, b.created_at
		FROM boards b
		JOIN board_members m ON m.board_id = b.id
		WHERE m.user_id = $1
		ORDER BY b.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	boards := []Board{}
	for rows.Next() {
		var board Board
		if err := rows.Scan(&board.ID, &board.Name, &board.CreatedBy, &board.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, board)
	}
	return boards, rows.Err()
}

// EnsureMembership returns the user's membership on a board, creating a
// non-admin one with a fresh private id on first join.
func (s *PostgresStore) EnsureMembership(ctx context.Context, boardID, userID string) (Member, error) {
	const find = `
		SELECT board_id, user_id, is_admin, private_id
		FROM board_members
		WHERE board_id = $1 AND user_id = $2
	`
	var member Member
	err := s.db.QueryRowContext(ctx, find, boardID, userID).
		Scan(&member.BoardID, &member.UserID, &member.IsAdmin, &member.PrivateID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Member{}, fmt.Errorf("lookup membership: %w", err)
	}

	const insert = `
		INSERT INTO board_members (board_id, user_id, is_admin, private_id)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (board_id, user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING board_id, user_id, is_admin, private_id
	`
	if err := s.db.QueryRowContext(ctx, insert, boardID, userID, util.NewSecret()).
		Scan(&member.BoardID, &member.UserID, &member.IsAdmin, &member.PrivateID); err != nil {
		return Member{}, fmt.Errorf("insert membership: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	const query = `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id = $2, expires_at = $3
	`
	if _, err := s.db.ExecContext(ctx, query, tokenHash, userID, expiresAt); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name
		FROM refresh_sessions r
		JOIN users u ON u.id = r.user_id
		WHERE r.token_hash = $1 AND r.expires_at > NOW()
	`
	var user User
	if err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, errors.New("token not found or expired")
		}
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
