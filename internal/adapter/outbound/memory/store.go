// Package memory implements the ledger store in process memory. It backs
// development runs and tests and has no durability.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/utils/keylock"
)

type paymentKey struct {
	provider   model.PaymentProvider
	externalID string
}

// Store implements outbound.LedgerStorePort.
//
// Atomic holds a per-account lock for the whole unit of work. Each tx
// operation mutates shared maps under mu and records an undo step, and a
// failing unit replays its undo steps in reverse. Readers outside Atomic can
// observe changes of a unit that later rolls back.
type Store struct {
	locks *keylock.Map

	mu           sync.RWMutex
	accounts     map[int64]*model.Account
	interactions map[int64][]*model.Interaction
	nextID       int64
	payments     map[paymentKey]*model.Payment
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		locks:        keylock.New(),
		accounts:     make(map[int64]*model.Account),
		interactions: make(map[int64][]*model.Interaction),
		payments:     make(map[paymentKey]*model.Payment),
	}
}

// Atomic runs fn with the account key held.
func (s *Store) Atomic(ctx context.Context, accountID int64, fn func(tx outbound.LedgerTx) error) (err error) {
	if err := s.locks.Lock(ctx, accountID); err != nil {
		return errors.Join(outbound.ErrStorageUnavailable, fmt.Errorf("lock account %d: %w", accountID, err))
	}
	defer s.locks.Unlock(accountID)

	tx := &memTx{s: s}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(tx)
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[id].Clone(), nil
}

func (s *Store) ListAccounts(ctx context.Context, filter model.AccountFilter) ([]*model.Account, error) {
	filter.DefaultLimit()

	s.mu.RLock()
	all := make([]*model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if filter.SubscribedOnly && !a.Subscribed {
			continue
		}
		all = append(all, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if filter.Offset >= len(all) {
		return []*model.Account{}, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (s *Store) FindPayment(ctx context.Context, provider model.PaymentProvider, externalID string) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payments[paymentKey{provider, externalID}].Clone(), nil
}

func (s *Store) RecentPending(ctx context.Context, accountID int64, provider model.PaymentProvider, since time.Time) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *model.Payment
	for _, p := range s.payments {
		if p.AccountID != accountID || p.Provider != provider || p.Status != model.PaymentStatusPending {
			continue
		}
		if p.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
			newest = p
		}
	}
	return newest.Clone(), nil
}

func (s *Store) ListUnresolvedPayments(ctx context.Context, createdBefore time.Time) ([]*model.Payment, error) {
	s.mu.RLock()
	out := make([]*model.Payment, 0)
	for _, p := range s.payments {
		if p.Status.IsTerminal() || !p.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListInteractions(ctx context.Context, accountID int64, day time.Time) ([]*model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Interaction, 0)
	for _, rec := range s.interactions[accountID] {
		if rec.ServiceDay.Equal(day) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListActiveAccountIDs(ctx context.Context, day time.Time) ([]int64, error) {
	s.mu.RLock()
	ids := make([]int64, 0)
	for id, recs := range s.interactions {
		for _, rec := range recs {
			if rec.ServiceDay.Equal(day) {
				ids = append(ids, id)
				break
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) Snapshot(ctx context.Context, accountID int64) (*model.AccountSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, nil
	}
	snap := &model.AccountSnapshot{
		Account:      acc.Clone(),
		Interactions: make([]*model.Interaction, 0, len(s.interactions[accountID])),
		Payments:     make([]*model.Payment, 0),
		TakenAt:      time.Now(),
	}
	for _, rec := range s.interactions[accountID] {
		snap.Interactions = append(snap.Interactions, rec.Clone())
	}
	for _, p := range s.payments {
		if p.AccountID == accountID {
			snap.Payments = append(snap.Payments, p.Clone())
		}
	}
	sort.Slice(snap.Payments, func(i, j int) bool { return snap.Payments[i].CreatedAt.Before(snap.Payments[j].CreatedAt) })
	return snap, nil
}

// memTx implements outbound.LedgerTx.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LoadAccount(id int64) (*model.Account, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.accounts[id].Clone(), nil
}

func (t *memTx) CreateAccount(acc *model.Account) (*model.Account, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if existing, ok := t.s.accounts[acc.ID]; ok {
		return existing.Clone(), nil
	}
	now := time.Now()
	stored := acc.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	t.s.accounts[acc.ID] = stored
	t.undo = append(t.undo, func() { delete(t.s.accounts, acc.ID) })
	return stored.Clone(), nil
}

func (t *memTx) SaveAccount(acc *model.Account) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	prev, existed := t.s.accounts[acc.ID]
	stored := acc.Clone()
	stored.UpdatedAt = time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}
	t.s.accounts[acc.ID] = stored
	acc.UpdatedAt = stored.UpdatedAt
	t.undo = append(t.undo, func() {
		if existed {
			t.s.accounts[acc.ID] = prev
		} else {
			delete(t.s.accounts, acc.ID)
		}
	})
	return nil
}

func (t *memTx) DeleteAccount(id int64) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	acc, ok := t.s.accounts[id]
	if !ok {
		return false, nil
	}
	recs := t.s.interactions[id]
	removed := make(map[paymentKey]*model.Payment)
	for k, p := range t.s.payments {
		if p.AccountID == id {
			removed[k] = p
			delete(t.s.payments, k)
		}
	}
	delete(t.s.accounts, id)
	delete(t.s.interactions, id)

	t.undo = append(t.undo, func() {
		t.s.accounts[id] = acc
		if recs != nil {
			t.s.interactions[id] = recs
		}
		for k, p := range removed {
			t.s.payments[k] = p
		}
	})
	return true, nil
}

func (t *memTx) AppendInteraction(rec *model.Interaction) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	t.s.nextID++
	rec.ID = t.s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	id := rec.AccountID
	t.s.interactions[id] = append(t.s.interactions[id], rec.Clone())
	t.undo = append(t.undo, func() {
		recs := t.s.interactions[id]
		if len(recs) == 1 {
			delete(t.s.interactions, id)
			return
		}
		t.s.interactions[id] = recs[:len(recs)-1]
	})
	return nil
}

func (t *memTx) LastInteraction(accountID int64, day time.Time) (*model.Interaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	recs := t.s.interactions[accountID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].ServiceDay.Equal(day) {
			return recs[i].Clone(), nil
		}
	}
	return nil, nil
}

func (t *memTx) SetSummary(interactionID int64, summary string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, recs := range t.s.interactions {
		for i, rec := range recs {
			if rec.ID != interactionID {
				continue
			}
			prev := rec
			updated := rec.Clone()
			updated.Summary = &summary
			recs[i] = updated
			t.undo = append(t.undo, func() { recs[i] = prev })
			return nil
		}
	}
	return fmt.Errorf("set summary: interaction %d not found", interactionID)
}

func (t *memTx) InsertPaymentIfAbsent(p *model.Payment) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	key := paymentKey{p.Provider, p.ExternalID}
	if _, ok := t.s.payments[key]; ok {
		return false, nil
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	t.s.payments[key] = p.Clone()
	t.undo = append(t.undo, func() { delete(t.s.payments, key) })
	return true, nil
}

func (t *memTx) LockPayment(provider model.PaymentProvider, externalID string) (*model.Payment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.payments[paymentKey{provider, externalID}].Clone(), nil
}

func (t *memTx) SavePayment(p *model.Payment) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	key := paymentKey{p.Provider, p.ExternalID}
	prev, ok := t.s.payments[key]
	if !ok {
		return fmt.Errorf("save payment: %s/%s not found", p.Provider, p.ExternalID)
	}
	p.UpdatedAt = time.Now()
	t.s.payments[key] = p.Clone()
	t.undo = append(t.undo, func() { t.s.payments[key] = prev })
	return nil
}

// Compile-time check
var _ outbound.LedgerStorePort = (*Store)(nil)
