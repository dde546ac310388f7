// Package secrets holds test credentials in two tiers: process-wide static
// defaults and per-run scoped values. Scoped values always win. The store
// substitutes {{Key}} placeholders in step input and masks known literal
// values back into placeholders before anything is logged or sent to a
// model transport.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Store is the process-wide static tier. Construct once at startup and
// inject; values are immutable afterwards.
type Store struct {
	static map[string]string
}

// NewStore builds the static tier from the given values.
func NewStore(values map[string]string) *Store {
	static := make(map[string]string, len(values))
	for k, v := range values {
		static[k] = v
	}
	return &Store{static: static}
}

// NewStoreFromEnvFile reads a dotenv file into the static tier.
// A missing file yields an empty store rather than an error: static
// defaults are optional. Any other failure (unreadable, malformed) is
// reported so a broken secrets file doesn't pass for an empty one.
func NewStoreFromEnvFile(path string) (*Store, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewStore(nil), nil
		}
		return nil, fmt.Errorf("read secrets file %s: %w", path, err)
	}
	return NewStore(values), nil
}

// Scope returns a per-run view over the static tier. Scoped entries
// shadow static ones; the scope is discarded with the run.
type Scope struct {
	store      *Store
	scoped     map[string]string
	scopedOnly bool
}

// Scope creates an empty per-run scope.
func (s *Store) Scope() *Scope {
	return &Scope{store: s, scoped: make(map[string]string)}
}

// Load merges per-run values into the scope.
func (sc *Scope) Load(values map[string]string) {
	for k, v := range values {
		sc.scoped[k] = v
	}
}

// RefuseStaticFallback pins the scope to scoped data only. Used when a run
// names a test-data source that turned out to be unavailable: falling back
// to static values would leak another environment's credentials, so
// lookups miss instead.
func (sc *Scope) RefuseStaticFallback() {
	sc.scopedOnly = true
}

// Get looks a key up, scoped tier first.
func (sc *Scope) Get(key string) (string, bool) {
	if v, ok := sc.scoped[key]; ok {
		return v, true
	}
	if sc.scopedOnly {
		return "", false
	}
	v, ok := sc.store.static[key]
	return v, ok
}

// Resolve substitutes every {{Key}} placeholder in text with its secret
// value. Unknown keys keep the raw placeholder so failures stay visible in
// the page rather than silently submitting an empty field.
func (sc *Scope) Resolve(text string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := sc.Get(key); ok {
			return v
		}
		return m
	})
}

// MaskLiterals replaces each case-insensitive occurrence of a known secret
// value with its {{Key}} placeholder. Masking already-masked text is a
// no-op since placeholders never collide with values. Longer values are
// masked first so overlapping secrets don't leave fragments behind.
func (sc *Scope) MaskLiterals(text string) string {
	type entry struct{ key, value string }
	var entries []entry
	seen := make(map[string]bool)
	for k, v := range sc.scoped {
		entries = append(entries, entry{k, v})
		seen[k] = true
	}
	if !sc.scopedOnly {
		for k, v := range sc.store.static {
			if !seen[k] {
				entries = append(entries, entry{k, v})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].value) != len(entries[j].value) {
			return len(entries[i].value) > len(entries[j].value)
		}
		return entries[i].key < entries[j].key
	})
	for _, e := range entries {
		if e.value == "" {
			continue
		}
		text = replaceFold(text, e.value, "{{"+e.key+"}}")
	}
	return text
}

// replaceFold is a case-insensitive strings.ReplaceAll.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	lower := strings.ToLower(s)
	target := strings.ToLower(old)
	var b strings.Builder
	for {
		i := strings.Index(lower, target)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(new)
		s = s[i+len(old):]
		lower = lower[i+len(target):]
	}
}
