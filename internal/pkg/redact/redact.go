// redact предоставляет утилиты безопасного редактирования чувствительных
// данных для логов (e-mail, токены, заголовки авторизации).
package redact

import "strings"

// Email маскирует e-mail для логирования.
//
// Правила:
//   - строка должна содержать ровно один '@', иначе возвращается "***";
//   - локальная часть заменяется на первые два символа (по рунам) + "***";
//   - если локальная часть не длиннее двух символов, возвращается "***@<domain>";
//   - доменная часть не меняется.
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает литерал-заглушку для токена в логах.
func Token() string { return "[REDACTED_TOKEN]" }

// Authorization маскирует значение заголовка Authorization, сохраняя схему.
//
//	"Bearer abc.def" -> "Bearer [REDACTED_TOKEN]"
//	""               -> ""
func Authorization(v string) string {
	if v == "" {
		return ""
	}

	if scheme, _, ok := strings.Cut(v, " "); ok {
		return scheme + " " + Token()
	}

	return Token()
}
