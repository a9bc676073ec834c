// Package user はユーザー登録・ログイン・プロフィール更新のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/calplanner/internal/model"
	"github.com/hitoshi/calplanner/internal/repository"
)

// Store はユーザーの永続化操作。
type Store interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) (*model.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	ListAll(ctx context.Context) ([]*model.User, error)
}

// SignupInput は新規登録の入力。
type SignupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// UpdateInput はプロフィール更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}

// Service はユーザー管理のサービス層。
type Service struct {
	users  Store
	cost   int
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// costが範囲外の場合はbcrypt.DefaultCostを使う。
func NewService(users Store, cost int, logger *slog.Logger) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, cost: cost, logger: logger}
}

// Signup はユーザーを登録する。メールアドレスは小文字に正規化される。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, model.NewValidationError("first_name, last_name, email and password are required")
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	u := &model.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを登録しました", slog.Int64("user_id", u.ID))
	return u, nil
}

// Login はメールアドレスとパスワードを照合する。
// 未登録とパスワード不一致は区別せずに同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, model.NewValidationError("email and password are required")
	}

	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		s.logger.Info("ログインに失敗しました", slog.Int64("user_id", u.ID))
		return nil, model.NewInvalidCredentialsError()
	}
	return u, nil
}

// Get はユーザーを取得する。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// Update はプロフィールを部分更新する。パスワードは再ハッシュされる。
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		v := strings.TrimSpace(*in.FirstName)
		if v == "" {
			return nil, model.NewValidationError("first_name must not be empty")
		}
		u.FirstName = v
	}
	if in.LastName != nil {
		v := strings.TrimSpace(*in.LastName)
		if v == "" {
			return nil, model.NewValidationError("last_name must not be empty")
		}
		u.LastName = v
	}
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if email != u.Email {
			other, err := s.users.FindByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
			}
			if other != nil && other.ID != id {
				return nil, model.NewDuplicateEmailError()
			}
		}
		u.Email = email
	}
	if in.Password != nil {
		if *in.Password == "" {
			return nil, model.NewValidationError("password must not be empty")
		}
		hash, err := s.hash(*in.Password)
		if err != nil {
			return nil, err
		}
		u.Password = hash
	}

	updated, err := s.users.Update(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewUserNotFoundError()
	}
	return updated, nil
}

// HashLegacyPasswords は平文のまま保存されているパスワードをハッシュ化し、件数を返す。
// 既にbcryptハッシュのものは変更しない。
func (s *Service) HashLegacyPasswords(ctx context.Context) (int, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	hashed := 0
	for _, u := range users {
		if u.Password == "" || isBcryptHash(u.Password) {
			continue
		}
		hash, err := s.hash(u.Password)
		if err != nil {
			s.logger.Error("パスワードのハッシュ化に失敗しました",
				slog.Int64("user_id", u.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
			return hashed, fmt.Errorf("パスワードの更新に失敗しました (user_id=%d): %w", u.ID, err)
		}
		hashed++
	}

	s.logger.Info("既存パスワードのハッシュ化が完了しました",
		slog.Int("users", len(users)),
		slog.Int("hashed", hashed),
	)
	return hashed, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", model.NewValidationError("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	return string(hash), nil
}

// isBcryptHash はbcrypt.Costで解釈できる値をハッシュとみなす。
func isBcryptHash(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("Invalid email address")
	}
	return email, nil
}
