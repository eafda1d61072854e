// Package keyspace composes caller namespaces and keys into backend keys.
//
// Layout:
//
//	<ns>:<key>
//
// Composite keys are never split back apart, so neither part is escaped. Two
// callers picking the same namespace share a keyspace; that is their bug to avoid.
package keyspace

import "strings"

// Separator joins a namespace and a key.
const Separator = ":"

// Compose returns the backend key for key under namespace ns.
func Compose(ns, key string) string {
	var b strings.Builder
	b.Grow(len(ns) + len(Separator) + len(key))
	b.WriteString(ns)
	b.WriteString(Separator)
	b.WriteString(key)
	return b.String()
}

// Prefix returns the prefix shared by every key composed under ns.
func Prefix(ns string) string { return ns + Separator }

// Pattern returns a glob matching every key under ns. Glob metacharacters in ns
// are escaped so that a namespace like "a*" does not match "ab:x".
func Pattern(ns string) string {
	return escapeGlob(ns) + Separator + "*"
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
