// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Passwordはbcryptハッシュを保持し、レスポンスには含めない。
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Password  string

	GoogleAccessToken  string
	GoogleRefreshToken string
	GoogleTokenExpiry  *time.Time

	CanvasICSURL   *string
	CanvasLastSync *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GoogleConnected はGoogle Calendarのトークンが保存済みかを返す。
func (u *User) GoogleConnected() bool {
	return u.GoogleAccessToken != "" || u.GoogleRefreshToken != ""
}

// CanvasConfigured はCanvasのICSフィードURLが設定済みかを返す。
func (u *User) CanvasConfigured() bool {
	return u.CanvasICSURL != nil && *u.CanvasICSURL != ""
}

// GoogleToken はGoogle Calendar APIの認証情報を表す。
type GoogleToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}
