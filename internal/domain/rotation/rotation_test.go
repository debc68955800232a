package rotation

import (
	"context"
	"sync"
	"testing"

	"github.com/forPelevin/scenecut/internal/types"
)

type namedProvider types.Source

func (p namedProvider) Name() types.Source { return types.Source(p) }

func (p namedProvider) Ready() bool { return p != "" }

func (p namedProvider) Search(context.Context, types.Query) ([]types.FootageResult, error) {
	return nil, nil
}

func TestKeyPool_RoundRobin(t *testing.T) {
	p := ParseKeyPool(" k1, ,k2,k1,k3 ")
	if p.Len() != 3 {
		t.Fatalf("expected 3 distinct keys, got %d", p.Len())
	}
	want := []string{"k1", "k2", "k3", "k1", "k2"}
	for i, w := range want {
		if got := p.Next(); got != w {
			t.Fatalf("Next() #%d = %q, want %q", i, got, w)
		}
	}
}

func TestKeyPool_EmptyIsUnconfigured(t *testing.T) {
	p := ParseKeyPool("")
	if p.Ready() {
		t.Fatalf("empty pool must not be ready")
	}
	if p.Next() != "" {
		t.Fatalf("empty pool must return empty key")
	}
	var nilPool *KeyPool
	if nilPool.Ready() {
		t.Fatalf("nil pool must not be ready")
	}
}

func TestKeyPool_ConcurrentNextIsBalanced(t *testing.T) {
	p := NewKeyPool("a", "b")
	var (
		mu     sync.Mutex
		counts = map[string]int{}
		wg     sync.WaitGroup
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k := p.Next()
			mu.Lock()
			counts[k]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counts["a"] != 50 || counts["b"] != 50 {
		t.Fatalf("unbalanced rotation: %v", counts)
	}
}

func TestState_Order(t *testing.T) {
	s := NewState(namedProvider("p0"), nil, namedProvider("p1"), namedProvider(""), namedProvider("p2"))
	if s.Len() != 3 {
		t.Fatalf("expected nil and unconfigured providers to be dropped, got %d", s.Len())
	}
	tests := []struct {
		unit int
		want []types.Source
	}{
		{0, []types.Source{"p0", "p1", "p2"}},
		{1, []types.Source{"p1", "p0", "p2"}},
		{2, []types.Source{"p2", "p0", "p1"}},
		{3, []types.Source{"p0", "p1", "p2"}},
		{7, []types.Source{"p1", "p0", "p2"}},
	}
	for _, tt := range tests {
		got := s.Order(tt.unit)
		if len(got) != len(tt.want) {
			t.Fatalf("unit %d: got %d providers", tt.unit, len(got))
		}
		for i := range tt.want {
			if got[i].Name() != tt.want[i] {
				t.Fatalf("unit %d: position %d = %s, want %s", tt.unit, i, got[i].Name(), tt.want[i])
			}
		}
	}
}

func TestState_Empty(t *testing.T) {
	if NewState().Order(3) != nil {
		t.Fatalf("expected no providers")
	}
}
