package selection

import (
	"sync"

	"github.com/forPelevin/scenecut/internal/types"
)

// Ledger records the clips already taken by a job. It is shared by every
// scene of that job and safe for concurrent use.
type Ledger struct {
	mu   sync.Mutex
	seen map[types.Key]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[types.Key]struct{})}
}

func (l *Ledger) Contains(k types.Key) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[k]
	return ok
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

type Claim struct {
	Candidate types.ScoredCandidate
	// Reused is set when every candidate was already taken and the best one
	// is used a second time. Reused claims own nothing and must not be released.
	Reused bool
}

// Claim takes the first candidate of ranked that no scene holds yet and
// records it, in one atomic step. If all are taken the top one is reused.
func (l *Ledger) Claim(ranked []types.ScoredCandidate) (Claim, bool) {
	if len(ranked) == 0 {
		return Claim{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range ranked {
		k := c.Result.Key()
		if _, taken := l.seen[k]; taken {
			continue
		}
		l.seen[k] = struct{}{}
		return Claim{Candidate: c}, true
	}
	return Claim{Candidate: ranked[0], Reused: true}, true
}

// Release returns a claimed key, e.g. after its download failed.
func (l *Ledger) Release(c Claim) {
	if c.Reused {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, c.Candidate.Result.Key())
}
