package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/calplanner/internal/model"
)

const userColumns = `id, first_name, last_name, email, password,
	google_access_token, google_refresh_token, google_token_expiry,
	canvas_ics_url, canvas_last_sync, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		user         model.User
		accessToken  sql.NullString
		refreshToken sql.NullString
		tokenExpiry  sql.NullTime
		icsURL       sql.NullString
		lastSync     sql.NullTime
	)
	err := s.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Password,
		&accessToken, &refreshToken, &tokenExpiry,
		&icsURL, &lastSync, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.GoogleAccessToken = nullStringValue(accessToken)
	user.GoogleRefreshToken = nullStringValue(refreshToken)
	user.GoogleTokenExpiry = nullTimePtr(tokenExpiry)
	if icsURL.Valid {
		u := icsURL.String
		user.CanvasICSURL = &u
	}
	user.CanvasLastSync = nullTimePtr(lastSync)

	return &user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによるユーザー検索に失敗しました: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (first_name, last_name, email, password)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		user.FirstName, user.LastName, user.Email, user.Password,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は氏名・メールアドレス・パスワードを更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) (*model.User, error) {
	updated, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET first_name = $2, last_name = $3, email = $4, password = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		user.ID, user.FirstName, user.LastName, user.Email, user.Password,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// UpdatePassword はパスワードハッシュのみを更新する。
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.exec(ctx, "パスワードの更新",
		`UPDATE users SET password = $2, updated_at = now() WHERE id = $1`, id, hash)
}

// ListAll は全ユーザーをID昇順で返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// UpdateGoogleToken はGoogle Calendarのトークンを保存する。
// リフレッシュトークンが空の場合は既存の値を維持する。
func (r *PostgresUserRepo) UpdateGoogleToken(ctx context.Context, id int64, token model.GoogleToken) error {
	return r.exec(ctx, "Googleトークンの保存",
		`UPDATE users
		 SET google_access_token = $2,
		     google_refresh_token = COALESCE($3, google_refresh_token),
		     google_token_expiry = $4,
		     updated_at = now()
		 WHERE id = $1`,
		id, token.AccessToken, nullString(token.RefreshToken), nullTime(token.Expiry))
}

// ClearGoogleToken はGoogle Calendarのトークンを削除する。
func (r *PostgresUserRepo) ClearGoogleToken(ctx context.Context, id int64) error {
	return r.exec(ctx, "Googleトークンの削除",
		`UPDATE users
		 SET google_access_token = NULL, google_refresh_token = NULL, google_token_expiry = NULL, updated_at = now()
		 WHERE id = $1`, id)
}

// UpdateCanvasURL はCanvasのICSフィードURLを保存する。
func (r *PostgresUserRepo) UpdateCanvasURL(ctx context.Context, id int64, icsURL string) error {
	return r.exec(ctx, "CanvasフィードURLの保存",
		`UPDATE users SET canvas_ics_url = $2, updated_at = now() WHERE id = $1`, id, icsURL)
}

// UpdateCanvasLastSync は最終同期日時を更新する。
func (r *PostgresUserRepo) UpdateCanvasLastSync(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "Canvas最終同期日時の更新",
		`UPDATE users SET canvas_last_sync = $2, updated_at = now() WHERE id = $1`, id, at)
}

// ClearCanvas はCanvasのフィードURLと最終同期日時を削除する。
func (r *PostgresUserRepo) ClearCanvas(ctx context.Context, id int64) error {
	return r.exec(ctx, "Canvas設定の削除",
		`UPDATE users SET canvas_ics_url = NULL, canvas_last_sync = NULL, updated_at = now() WHERE id = $1`, id)
}

// ListCanvasSubscribers はCanvasとGoogle Calendarの両方を設定済みのユーザーを返す。
func (r *PostgresUserRepo) ListCanvasSubscribers(ctx context.Context) ([]*model.User, error) {
	return r.list(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE canvas_ics_url IS NOT NULL
		   AND google_access_token IS NOT NULL
		   AND google_refresh_token IS NOT NULL
		 ORDER BY id`)
}

func (r *PostgresUserRepo) list(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザー行のスキャンに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}
	return users, nil
}

func (r *PostgresUserRepo) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%sに失敗しました: %w", op, err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
