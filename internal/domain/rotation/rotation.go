package rotation

import (
	"strings"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/forPelevin/scenecut/internal/ports"
)

// KeyPool hands out a provider's credentials round-robin. Safe for
// concurrent use.
type KeyPool struct {
	keys []string
	next atomic.Uint64
}

// NewKeyPool keeps the non-empty, distinct keys in their given order.
func NewKeyPool(keys ...string) *KeyPool {
	clean := lo.Uniq(lo.Compact(lo.Map(keys, func(k string, _ int) string {
		return strings.TrimSpace(k)
	})))
	return &KeyPool{keys: clean}
}

// ParseKeyPool builds a pool from a comma-separated list.
func ParseKeyPool(csv string) *KeyPool {
	return NewKeyPool(strings.Split(csv, ",")...)
}

// Ready reports whether the pool holds a usable credential.
func (p *KeyPool) Ready() bool {
	return p != nil && len(p.keys) > 0
}

func (p *KeyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Next returns the next key, or "" for an empty pool.
func (p *KeyPool) Next() string {
	if !p.Ready() {
		return ""
	}
	i := p.next.Add(1) - 1
	return p.keys[i%uint64(len(p.keys))]
}

// State is the per-job provider rotation. It is built once and never changes
// afterwards; providers that are not Ready are left out.
type State struct {
	providers []ports.FootageProvider
}

func NewState(providers ...ports.FootageProvider) State {
	return State{providers: lo.Filter(providers, func(p ports.FootageProvider, _ int) bool {
		return p != nil && p.Ready()
	})}
}

func (s State) Len() int { return len(s.providers) }

// Order returns the providers to try for the given search unit: the assigned
// provider first, then every other provider in configured order.
func (s State) Order(unit int) []ports.FootageProvider {
	n := len(s.providers)
	if n == 0 {
		return nil
	}
	if unit < 0 {
		unit = -unit
	}
	first := unit % n
	out := make([]ports.FootageProvider, 0, n)
	out = append(out, s.providers[first])
	for i, p := range s.providers {
		if i != first {
			out = append(out, p)
		}
	}
	return out
}
