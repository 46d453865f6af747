package cache

import (
	"strconv"
	"strings"
)

const namespaceSeparator = "-cache-"

// Key builds the cache key for one thumbnail. Identical inputs always
// produce the same key.
func Key(namespace string, size int, offset float64, url string) string {
	var b strings.Builder
	b.Grow(len(namespace) + len(namespaceSeparator) + len(url) + 24)
	b.WriteString(NamespacePrefix(namespace))
	b.WriteString(strconv.Itoa(size))
	b.WriteByte('|')
	b.WriteString(FormatOffset(offset))
	b.WriteByte('|')
	b.WriteString(url)
	return b.String()
}

// NamespacePrefix returns the prefix shared by every key of a namespace.
func NamespacePrefix(namespace string) string {
	return namespace + namespaceSeparator
}

// InNamespace reports whether key is a thumbnail key directly under the
// namespace prefix: the text after prefix must start with the size field.
// Clearing "a" therefore leaves keys of "a-cache-b" alone.
func InNamespace(key, prefix string) bool {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return false
	}
	size, _, ok := strings.Cut(rest, "|")
	if !ok || size == "" {
		return false
	}
	for i := 0; i < len(size); i++ {
		if size[i] < '0' || size[i] > '9' {
			return false
		}
	}
	return true
}

// ValidNamespace reports whether namespace can be used in keys. A '|'
// would let one namespace's keys parse as another's.
func ValidNamespace(namespace string) bool {
	return namespace != "" && !strings.Contains(namespace, "|")
}

// FormatOffset renders an offset in its shortest exact decimal form, so
// 0.5 and 0.50 share a key while 10 never reads as 1e+01.
func FormatOffset(offset float64) string {
	return strconv.FormatFloat(offset, 'f', -1, 64)
}
