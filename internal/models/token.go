package models

import "time"

// TokenPair — пара токенов, которую возвращают /login и /refresh.
// На /refresh refresh_token может отсутствовать (ротация не обязательна).
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Claims — декодированная (без проверки подписи) полезная нагрузка access-токена.
type Claims struct {
	// ID — идентификатор субъекта: sub, либо id/uid.
	ID            string
	Email         string
	EmailVerified bool
	ExpiresAt     time.Time
	IssuedAt      time.Time
	// Raw — все claims как есть.
	Raw map[string]any
}

// HasExpiry сообщает, задан ли в токене exp.
func (c *Claims) HasExpiry() bool {
	return c != nil && !c.ExpiresAt.IsZero()
}

// Session — текущий пользователь в памяти процесса.
type Session struct {
	Claims     Claims
	LoggedInAt time.Time
}
