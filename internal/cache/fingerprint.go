package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Key builds the cache key grammar:
//
//	"<module>:<tenantUuid>:<tool>:<argFingerprint>"
func Key(module, tenantUUID, tool string, args map[string]any) string {
	return strings.Join([]string{module, tenantUUID, tool, Fingerprint(args)}, ":")
}

// Fingerprint canonicalizes args (recursively sorted object keys, stable
// number formatting) and returns the first 12 lowercase hex characters of
// its SHA-256 digest. Argument ordering never affects the fingerprint,
// and numeric values are formatted identically regardless of their
// originating Go type (int, int64, float64 all collapse to the same
// canonical decimal form).
func Fingerprint(args map[string]any) string {
	var b strings.Builder
	writeCanonical(&b, args)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:12]
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%q:", k)
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case string:
		fmt.Fprintf(b, "%q", val)
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case float32:
		b.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	default:
		fmt.Fprintf(b, "%v", val)
	}
}
