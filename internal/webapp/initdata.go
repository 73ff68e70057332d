// Package webapp - HTTP API для Telegram Mini App (/api/mini-app/...).
// initdata.go проверяет подпись initData, которую Telegram передаёт в Mini App.
package webapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"shft.ru/secure-bot/internal/common"
)

// TelegramUser - поле user из initData.
type TelegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// InitData - проверенные данные запуска Mini App.
type InitData struct {
	User       TelegramUser
	AuthDate   time.Time
	QueryID    string
	StartParam string
}

// initDataClockSkew - допустимое расхождение часов с Telegram для auth_date из будущего.
const initDataClockSkew = 5 * time.Minute

// ValidateInitData проверяет строку initData:
//
//	secret = HMAC-SHA256(key="WebAppData", msg=botToken)
//	hash   = hex(HMAC-SHA256(key=secret, msg=отсортированные "k=v" через "\n"))
//
// и что auth_date не старше ttl относительно now и не из будущего.
func ValidateInitData(raw, botToken string, ttl time.Duration, now time.Time) (*InitData, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: пустые данные", common.ErrInvalidInitData)
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInitData, err)
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, fmt.Errorf("%w: нет hash", common.ErrInvalidInitData)
	}
	want := signValues(values, botToken)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(gotHash))) {
		return nil, fmt.Errorf("%w: подпись не совпала", common.ErrInvalidInitData)
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: auth_date", common.ErrInvalidInitData)
	}
	authDate := time.Unix(authUnix, 0)
	if authDate.After(now.Add(initDataClockSkew)) {
		return nil, fmt.Errorf("%w: auth_date в будущем", common.ErrInvalidInitData)
	}
	if now.Sub(authDate) > ttl {
		return nil, common.ErrInitDataExpired
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, fmt.Errorf("%w: нет пользователя", common.ErrInvalidInitData)
	}

	return &InitData{
		User:       user,
		AuthDate:   authDate,
		QueryID:    values.Get("query_id"),
		StartParam: values.Get("start_param"),
	}, nil
}

// signValues считает hash для всех полей, кроме самого hash.
func signValues(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
