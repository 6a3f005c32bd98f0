package decor

import (
	"sync"
	"sync/atomic"
)

// tokenTable hands out the user_data values given to libdecor. A token maps
// back to its strategy from inside a native callback and stays valid from
// acquire until reclaim, whatever the Go stack does in between.
type tokenTable struct {
	next atomic.Uintptr
	live sync.Map // map[uintptr]*nativeStrategy
}

var callbackTokens tokenTable

func (t *tokenTable) acquire(s *nativeStrategy) uintptr {
	tok := t.next.Add(1)
	t.live.Store(tok, s)
	return tok
}

func (t *tokenTable) lookup(tok uintptr) *nativeStrategy {
	v, ok := t.live.Load(tok)
	if !ok {
		return nil
	}
	return v.(*nativeStrategy)
}

// reclaim ends a token's validity. It reports false if the token was not live.
func (t *tokenTable) reclaim(tok uintptr) bool {
	_, ok := t.live.LoadAndDelete(tok)
	return ok
}

func (t *tokenTable) count() int {
	n := 0
	t.live.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
