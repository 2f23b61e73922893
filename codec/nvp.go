package codec

import (
	"fmt"
	"net/url"
	"strings"
)

// Pair is a single key/value entry of an ordered parameter set.
type Pair struct {
	Key   string
	Value string
}

// Values is an ordered parameter set. Gateways care about insertion order
// (MAC input, plaintext layout), which a map cannot keep.
type Values []Pair

// Set replaces the value of an existing key in place, or appends it.
func (v *Values) Set(key, value string) {
	for i := range *v {
		if (*v)[i].Key == key {
			(*v)[i].Value = value
			return
		}
	}
	*v = append(*v, Pair{Key: key, Value: value})
}

// Get returns the value for key and whether it was present.
func (v Values) Get(key string) (string, bool) {
	for _, p := range v {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Value returns the value for key, or "" when absent.
func (v Values) Value(key string) string {
	s, _ := v.Get(key)
	return s
}

func (v Values) Len() int { return len(v) }

func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for _, p := range v {
		keys = append(keys, p.Key)
	}
	return keys
}

// Map copies the pairs into a plain map.
func (v Values) Map() map[string]string {
	m := make(map[string]string, len(v))
	for _, p := range v {
		m[p.Key] = p.Value
	}
	return m
}

// Raw joins the pairs as key=value with '&' and no escaping at all.
// The redirect cipher works on this exact string.
func (v Values) Raw() string {
	var b strings.Builder
	for i, p := range v {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// Encode joins the pairs in insertion order, query-escaping keys and values.
func (v Values) Encode() string {
	var b strings.Builder
	for i, p := range v {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// DecodeNVP parses a name-value-pair body by scanning left to right. Each
// segment ends at the next '&' (or the end of input) and is split at its
// first '='. Key and value are unescaped only after splitting, so encoded
// delimiters inside values survive.
func DecodeNVP(s string) (Values, error) {
	var out Values
	for len(s) > 0 {
		end := strings.IndexByte(s, '&')
		if end < 0 {
			end = len(s)
		}
		segment := s[:end]
		if end < len(s) {
			s = s[end+1:]
		} else {
			s = ""
		}
		if segment == "" {
			continue
		}

		rawKey, rawValue := segment, ""
		if eq := strings.IndexByte(segment, '='); eq >= 0 {
			rawKey, rawValue = segment[:eq], segment[eq+1:]
		}

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("decode nvp key %q: %w", rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decode nvp value for %q: %w", key, err)
		}
		out.Set(key, value)
	}
	return out, nil
}
