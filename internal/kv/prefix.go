package kv

import "strings"

// Prefixed scopes every key of an underlying store under a fixed prefix.
type Prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix returns a view of s whose keys all live under prefix.
// Close on the view is a no-op; the underlying store owns its resources.
func WithPrefix(s Store, prefix string) *Prefixed {
	if p, ok := s.(*Prefixed); ok {
		return &Prefixed{inner: p.inner, prefix: p.prefix + prefix}
	}
	return &Prefixed{inner: s, prefix: prefix}
}

func (p *Prefixed) Get(key string) ([]byte, error) { return p.inner.Get(p.prefix + key) }

func (p *Prefixed) Set(key string, value []byte) error { return p.inner.Set(p.prefix+key, value) }

func (p *Prefixed) Remove(key string) error { return p.inner.Remove(p.prefix + key) }

func (p *Prefixed) KeysWithPrefix(prefix string) ([]string, error) {
	keys, err := p.inner.KeysWithPrefix(p.prefix + prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, p.prefix)
	}
	return keys, nil
}

func (p *Prefixed) Close() error { return nil }
