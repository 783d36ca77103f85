package reconcile

import (
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Key is a deterministic matching key: a tag naming the derivation rule
// followed by its components.
type Key []string

// NewKey builds a key, reporting false when any component is empty.
func NewKey(tag string, parts ...string) (Key, bool) {
	k := make(Key, 0, len(parts)+1)
	k = append(k, tag)
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
		k = append(k, p)
	}
	return k, true
}

// Tag returns the derivation rule of the key.
func (k Key) Tag() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// Parts returns the components after the tag.
func (k Key) Parts() []string {
	if len(k) < 2 {
		return nil
	}
	return k[1:]
}

// String returns the canonical encoding of the key, a JSON array.
func (k Key) String() string {
	data, _ := json.Marshal([]string(k))
	return string(data)
}

// ParseKey decodes the canonical encoding produced by String.
func ParseKey(s string) (Key, error) {
	var parts []string
	if err := json.Unmarshal([]byte(s), &parts); err != nil {
		return nil, err
	}
	return Key(parts), nil
}

// KeysByClaim maps claim ids to their keys in descending priority.
type KeysByClaim map[string][]Key

// keyList accumulates keys, dropping incomplete and repeated ones.
type keyList struct {
	keys []Key
	seen map[string]bool
}

func (l *keyList) add(tag string, parts ...string) {
	k, ok := NewKey(tag, parts...)
	if !ok {
		return
	}
	s := k.String()
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[s] {
		return
	}
	l.seen[s] = true
	l.keys = append(l.keys, k)
}

// keyIndex maps encoded keys to the id that first registered them.
type keyIndex map[string]string

// match returns the id registered for the highest-priority key in keys.
func (ix keyIndex) match(keys []Key) (string, bool) {
	for _, k := range keys {
		if id, ok := ix[k.String()]; ok {
			return id, true
		}
	}
	return "", false
}

func (ix keyIndex) register(keys []Key, id string) {
	for _, k := range keys {
		s := k.String()
		if _, taken := ix[s]; !taken {
			ix[s] = id
		}
	}
}

// NormalizeText applies NFKC normalization and case folding, strips
// punctuation and collapses whitespace. An empty result means absent.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
