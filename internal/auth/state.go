package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidState はOAuthのstateパラメータが改ざん・破損していることを示す。
var ErrInvalidState = errors.New("invalid oauth state")

// StateSigner はユーザーIDを埋め込んだOAuth stateを発行・検証する。
// 形式は "<userID>.<nonce>.<signature>"。
type StateSigner struct {
	secret   []byte
	newNonce func() string
}

// NewStateSigner はStateSignerを生成する。
func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{
		secret:   []byte(secret),
		newNonce: func() string { return uuid.New().String() },
	}
}

// Sign はuserIDに対するstateを発行する。
func (s *StateSigner) Sign(userID int64) string {
	payload := strconv.FormatInt(userID, 10) + "." + s.newNonce()
	return payload + "." + s.mac(payload)
}

// Verify はstateの署名を検証し、埋め込まれたuserIDを返す。
func (s *StateSigner) Verify(state string) (int64, error) {
	i := strings.LastIndex(state, ".")
	if i <= 0 {
		return 0, ErrInvalidState
	}
	payload, sig := state[:i], state[i+1:]

	if !hmac.Equal([]byte(sig), []byte(s.mac(payload))) {
		return 0, ErrInvalidState
	}

	idPart, _, ok := strings.Cut(payload, ".")
	if !ok {
		return 0, ErrInvalidState
	}
	userID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidState
	}
	return userID, nil
}

func (s *StateSigner) mac(payload string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
