package index

import (
	"strings"
)

// NormalizeURLKey rewrites a SURT url key such as "org,example,www)/a?b"
// into the forward form "www.example.org/a?b". Keys without the ")" host
// terminator are returned unchanged.
func NormalizeURLKey(key string) string {
	idx := strings.IndexByte(key, ')')
	if idx <= 0 {
		return key
	}
	host, rest := key[:idx], key[idx+1:]
	port := ""
	if p := strings.LastIndexByte(host, ':'); p >= 0 {
		host, port = host[:p], host[p:]
	}
	parts := strings.Split(host, ",")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".") + port + rest
}
