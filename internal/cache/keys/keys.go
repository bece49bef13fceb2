// Package keys derives cache keys for memoized calls and fetched URLs.
package keys

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Memo builds the key of a memoized call from its function name and full
// argument list. Equal arguments always give equal keys; argument order and
// types are significant.
func Memo(fn string, args ...any) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		writeArg(&b, a)
	}
	sig := b.String()
	return fmt.Sprintf("memo:%s:%016x", sanitize(strings.TrimSpace(fn)), xxhash.Sum64String(sig))
}

// Backend namespaces a local key (a memo key or a raw URL) for the shared
// external store.
func Backend(namespace, key string) string {
	return namespace + key
}

func writeArg(b *strings.Builder, a any) {
	switch v := a.(type) {
	case nil:
		b.WriteString("n:")
	case string:
		b.WriteString("s:")
		b.WriteString(v)
	case float64:
		b.WriteString("f:")
		b.WriteString(formatFloat(v))
	case *float64:
		if v == nil {
			b.WriteString("n:")
			return
		}
		b.WriteString("f:")
		b.WriteString(formatFloat(*v))
	case int:
		b.WriteString("i:")
		b.WriteString(strconv.Itoa(v))
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(v, 10))
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(v))
	default:
		fmt.Fprintf(b, "%T:%v", v, v)
	}
}

// shortest round-trip form; -0 collapses into 0
func formatFloat(f float64) string {
	if f == 0 || math.IsNaN(f) {
		f = math.Abs(f)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
