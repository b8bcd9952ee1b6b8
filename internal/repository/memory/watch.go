package memory

import (
	"context"
	"fmt"
	"referral_ledger/internal/domain"
	"referral_ledger/internal/repository"
)

// Subscribe streams the full value of a collection: once immediately and then
// after every change. Slow readers only ever see the latest value.
func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan repository.Change, error) {
	switch prefix {
	case domain.CollectionAccounts, domain.CollectionActivations,
		domain.CollectionWithdrawals, domain.CollectionSettings:
	default:
		return nil, fmt.Errorf("%w: unknown subtree %q", domain.ErrInvalidRequest, prefix)
	}

	ch := make(chan repository.Change, 1)

	s.subMu.Lock()
	if s.subs[prefix] == nil {
		s.subs[prefix] = make(map[int]chan repository.Change)
	}
	id := s.nextID
	s.nextID++
	s.subs[prefix][id] = ch
	deliver(ch, s.snapshot(prefix))
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if chans, ok := s.subs[prefix]; ok {
			if _, ok := chans[id]; ok {
				delete(chans, id)
				close(ch)
			}
		}
	}()

	return ch, nil
}

func (s *Store) notify(prefix string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	chans := s.subs[prefix]
	if len(chans) == 0 {
		return
	}
	change := s.snapshot(prefix)
	for _, ch := range chans {
		deliver(ch, change)
	}
}

func (s *Store) snapshot(prefix string) repository.Change {
	s.mu.RLock()
	defer s.mu.RUnlock()

	change := repository.Change{Prefix: prefix}
	switch prefix {
	case domain.CollectionAccounts:
		change.Value = s.accountsLocked()
	case domain.CollectionActivations:
		change.Value = s.activationsLocked("")
	case domain.CollectionWithdrawals:
		change.Value = s.withdrawalsLocked("")
	default:
		settings := make(map[string]string, len(s.settings))
		for k, v := range s.settings {
			settings[k] = v
		}
		change.Value = settings
	}
	return change
}

// deliver replaces any undelivered value with the newer one. Callers hold
// subMu, so there is a single producer per channel.
func deliver(ch chan repository.Change, change repository.Change) {
	for {
		select {
		case ch <- change:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
