package server

import (
	"encoding/base64"
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	HeaderReplyText      = "X-Reply-Text"
	HeaderTranscriptText = "X-Transcript-Text"

	encodingSuffix = "-Encoding"
)

// headerEncoder кладет текст в заголовок ответа: как есть (только ASCII) или в base64
type headerEncoder struct {
	encoding string
	maxLen   int
}

func (e headerEncoder) set(h http.Header, name, text string) {
	text = truncateUTF8(text, e.maxLen)

	if e.encoding == "base64" {
		h.Set(name, base64.StdEncoding.EncodeToString([]byte(text)))
		h.Set(name+encodingSuffix, "base64")
		return
	}

	h.Set(name, sanitizeHeaderValue(text))
}

// truncateUTF8 обрезает строку до max байт, не разрывая символ
func truncateUTF8(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// sanitizeHeaderValue оставляет печатный ASCII.
// Переносы строк и серии пробелов сворачиваются в один пробел.
func sanitizeHeaderValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			// управляющие символы выбрасываем
		case r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
