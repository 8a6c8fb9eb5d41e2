// tokens декодирует access-токены (JWT) на стороне клиента.
// Подпись не проверяется: это делает сервер на каждом защищённом запросе.
package tokens

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pribylovaa/go-cheffrey-client/internal/models"
)

var (
	// ErrMalformedToken — строка не является корректным компактным JWT.
	ErrMalformedToken = errors.New("malformed token")
)

var parser = jwt.NewParser()

// Decode разбирает токен и возвращает его claims.
// Чистая функция без I/O. Любая ошибка разбора оборачивает ErrMalformedToken.
func Decode(token string) (*models.Claims, error) {
	const op = "tokens.Decode"

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%s: %w: empty", op, ErrMalformedToken)
	}

	mc := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrMalformedToken, err)
	}

	claims := &models.Claims{Raw: map[string]any(mc)}

	for _, k := range []string{"sub", "id", "uid"} {
		if id, ok := stringify(mc[k]); ok {
			claims.ID = id
			break
		}
	}

	if v, ok := mc["email"].(string); ok {
		claims.Email = v
	}

	if v, ok := mc["email_verified"].(bool); ok {
		claims.EmailVerified = v
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: exp: %v", op, ErrMalformedToken, err)
	}
	if exp != nil {
		claims.ExpiresAt = exp.Time.UTC()
	}

	iat, err := mc.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: iat: %v", op, ErrMalformedToken, err)
	}
	if iat != nil {
		claims.IssuedAt = iat.Time.UTC()
	}

	return claims, nil
}

// ExpiresIn возвращает время до истечения токена относительно now.
// Второе значение false, если exp в токене нет.
func ExpiresIn(c *models.Claims, now time.Time) (time.Duration, bool) {
	if !c.HasExpiry() {
		return 0, false
	}

	return c.ExpiresAt.Sub(now), true
}

// stringify приводит идентификатор субъекта к строке: сервер кладёт
// туда как строки, так и целые числа.
func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}
