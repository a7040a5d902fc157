// Package storetest holds the behavioural contract every ledger store
// implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
)

// Options tunes the contract for a backend.
type Options struct {
	// Concurrent enables tests that run many units of work in parallel.
	Concurrent bool
}

var (
	day1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

var errBoom = errors.New("boom")

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore func(t *testing.T) outbound.LedgerStorePort, opts Options) {
	t.Run("create account is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
			acc, err := tx.CreateAccount(newAccount(1, 5))
			require.NoError(t, err)
			assert.Equal(t, 5, *acc.QuotaRemaining)

			again, err := tx.CreateAccount(newAccount(1, 99))
			require.NoError(t, err)
			assert.Equal(t, 5, *again.QuotaRemaining)
			return nil
		})
		require.NoError(t, err)

		got, err := s.GetAccount(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.ServiceDay.Equal(day1))
		assert.Equal(t, 5, *got.QuotaRemaining)
	})

	t.Run("missing rows read as nil", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		acc, err := s.GetAccount(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, acc)

		p, err := s.FindPayment(ctx, model.PaymentProviderCard, "nope")
		require.NoError(t, err)
		assert.Nil(t, p)

		snap, err := s.Snapshot(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, snap)

		require.NoError(t, s.Atomic(ctx, 404, func(tx outbound.LedgerTx) error {
			acc, err := tx.LoadAccount(404)
			require.NoError(t, err)
			assert.Nil(t, acc)
			last, err := tx.LastInteraction(404, day1)
			require.NoError(t, err)
			assert.Nil(t, last)
			deleted, err := tx.DeleteAccount(404)
			require.NoError(t, err)
			assert.False(t, deleted)
			return nil
		}))
	})

	t.Run("failed unit of work rolls back", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)

		err := s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
			acc, err := tx.LoadAccount(1)
			require.NoError(t, err)
			acc.RequestsToday = 10
			require.NoError(t, tx.SaveAccount(acc))
			require.NoError(t, tx.AppendInteraction(&model.Interaction{AccountID: 1, ServiceDay: day1, Input: "x", CreatedAt: base}))
			_, err = tx.InsertPaymentIfAbsent(newPayment(1, model.PaymentProviderToken, "ch_1", base))
			require.NoError(t, err)
			_, err = tx.CreateAccount(newAccount(2, 5))
			require.NoError(t, err)
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)

		acc, err := s.GetAccount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, acc.RequestsToday)

		other, err := s.GetAccount(ctx, 2)
		require.NoError(t, err)
		assert.Nil(t, other)

		recs, err := s.ListInteractions(ctx, 1, day1)
		require.NoError(t, err)
		assert.Empty(t, recs)

		p, err := s.FindPayment(ctx, model.PaymentProviderToken, "ch_1")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("save account round trips every field", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)

		ends := day1.AddDate(0, 0, 30)
		require.NoError(t, s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
			acc, err := tx.LoadAccount(1)
			require.NoError(t, err)
			acc.Subscribed = true
			acc.SubscriptionStarted = model.TimePtr(day1)
			acc.SubscriptionEnds = &ends
			acc.QuotaRemaining = nil
			acc.BannedUntil = model.TimePtr(day1)
			acc.Username = "ivan"
			acc.FullName = "Ivan Petrov"
			acc.Memory = "likes tea"
			return tx.SaveAccount(acc)
		}))

		got, err := s.GetAccount(ctx, 1)
		require.NoError(t, err)
		assert.True(t, got.Subscribed)
		assert.Nil(t, got.QuotaRemaining)
		require.NotNil(t, got.SubscriptionEnds)
		assert.True(t, got.SubscriptionEnds.Equal(ends))
		require.NotNil(t, got.BannedUntil)
		assert.True(t, got.BannedUntil.Equal(day1))
		assert.Equal(t, "ivan", got.Username)
		assert.Equal(t, "Ivan Petrov", got.FullName)
		assert.Equal(t, "likes tea", got.Memory)
	})

	t.Run("payments are unique per provider and external id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)

		require.NoError(t, s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
			ok, err := tx.InsertPaymentIfAbsent(newPayment(1, model.PaymentProviderCard, "pay_1", base))
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = tx.InsertPaymentIfAbsent(newPayment(1, model.PaymentProviderCard, "pay_1", base))
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = tx.InsertPaymentIfAbsent(newPayment(1, model.PaymentProviderToken, "pay_1", base))
			require.NoError(t, err)
			assert.True(t, ok, "same external id under another provider is a different payment")
			return nil
		}))

		p, err := s.FindPayment(ctx, model.PaymentProviderCard, "pay_1")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, int64(19900), p.Amount)
		assert.Equal(t, model.PaymentStatusPending, p.Status)
		assert.JSONEq(t, `{"id":"pay_1"}`, string(p.Raw))
	})

	t.Run("lock and save payment", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)
		insert(t, s, newPayment(1, model.PaymentProviderCard, "pay_1", base))

		paidAt := base.Add(time.Minute)
		require.NoError(t, s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
			p, err := tx.LockPayment(model.PaymentProviderCard, "pay_1")
			require.NoError(t, err)
			require.NotNil(t, p)
			p.Status = model.PaymentStatusSucceeded
			p.PaidAt = &paidAt
			p.LastError = ""
			return tx.SavePayment(p)
		}))

		p, err := s.FindPayment(ctx, model.PaymentProviderCard, "pay_1")
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusSucceeded, p.Status)
		require.NotNil(t, p.PaidAt)
		assert.True(t, p.PaidAt.Equal(paidAt))
	})

	t.Run("recent pending returns newest within window", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)
		seed(t, s, 2)

		insert(t, s, newPayment(1, model.PaymentProviderCard, "old", base))
		insert(t, s, newPayment(1, model.PaymentProviderCard, "new", base.Add(5*time.Minute)))
		insert(t, s, newPayment(2, model.PaymentProviderCard, "other", base.Add(6*time.Minute)))
		done := newPayment(1, model.PaymentProviderCard, "done", base.Add(7*time.Minute))
		done.Status = model.PaymentStatusCanceled
		insert(t, s, done)

		p, err := s.RecentPending(ctx, 1, model.PaymentProviderCard, base.Add(time.Minute))
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "new", p.ExternalID)

		p, err = s.RecentPending(ctx, 1, model.PaymentProviderCard, base.Add(10*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("unresolved payments", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)

		insert(t, s, newPayment(1, model.PaymentProviderCard, "a", base))
		odd := newPayment(1, model.PaymentProviderCard, "b", base.Add(time.Minute))
		odd.Status = "waiting_for_capture"
		insert(t, s, odd)
		ok := newPayment(1, model.PaymentProviderCard, "c", base)
		ok.Status = model.PaymentStatusSucceeded
		insert(t, s, ok)
		insert(t, s, newPayment(1, model.PaymentProviderCard, "d", base.Add(time.Hour)))

		list, err := s.ListUnresolvedPayments(ctx, base.Add(30*time.Minute))
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].ExternalID)
		assert.Equal(t, "b", list[1].ExternalID)
	})

	t.Run("interactions by day and summary", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)
		seed(t, s, 2)

		require.NoError(t, s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
			for i, in := range []string{"a", "b", "c"} {
				require.NoError(t, tx.AppendInteraction(&model.Interaction{
					AccountID: 1, ServiceDay: day1, Input: in, Output: in + "!", CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}))
			}
			return tx.AppendInteraction(&model.Interaction{AccountID: 1, ServiceDay: day2, Input: "d", CreatedAt: base.Add(24 * time.Hour)})
		}))

		recs, err := s.ListInteractions(ctx, 1, day1)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "a", recs[0].Input)
		assert.Equal(t, "c", recs[2].Input)
		assert.Less(t, recs[0].ID, recs[1].ID)

		ids, err := s.ListActiveAccountIDs(ctx, day1)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, ids)

		require.NoError(t, s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
			last, err := tx.LastInteraction(1, day1)
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.Equal(t, "c", last.Input)
			return tx.SetSummary(last.ID, "- talked")
		}))

		recs, err = s.ListInteractions(ctx, 1, day1)
		require.NoError(t, err)
		assert.Nil(t, recs[0].Summary)
		require.NotNil(t, recs[2].Summary)
		assert.Equal(t, "- talked", *recs[2].Summary)
	})

	t.Run("delete cascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)
		seed(t, s, 2)
		insert(t, s, newPayment(1, model.PaymentProviderCard, "p1", base))
		insert(t, s, newPayment(2, model.PaymentProviderCard, "p2", base))
		for _, id := range []int64{1, 2} {
			require.NoError(t, s.Atomic(ctx, id, func(tx outbound.LedgerTx) error {
				return tx.AppendInteraction(&model.Interaction{AccountID: id, ServiceDay: day1, Input: "hi", CreatedAt: base})
			}))
		}

		snap, err := s.Snapshot(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Len(t, snap.Interactions, 1)
		assert.Len(t, snap.Payments, 1)

		require.NoError(t, s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
			deleted, err := tx.DeleteAccount(1)
			require.NoError(t, err)
			assert.True(t, deleted)
			return nil
		}))

		acc, err := s.GetAccount(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, acc)
		recs, err := s.ListInteractions(ctx, 1, day1)
		require.NoError(t, err)
		assert.Empty(t, recs)
		p, err := s.FindPayment(ctx, model.PaymentProviderCard, "p1")
		require.NoError(t, err)
		assert.Nil(t, p)

		recs, err = s.ListInteractions(ctx, 2, day1)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
		p, err = s.FindPayment(ctx, model.PaymentProviderCard, "p2")
		require.NoError(t, err)
		assert.NotNil(t, p)
	})

	t.Run("list accounts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, id := range []int64{30, 10, 20} {
			seed(t, s, id)
		}
		require.NoError(t, s.Atomic(ctx, 20, func(tx outbound.LedgerTx) error {
			acc, err := tx.LoadAccount(20)
			require.NoError(t, err)
			acc.Subscribed = true
			return tx.SaveAccount(acc)
		}))

		all, err := s.ListAccounts(ctx, model.AccountFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int64{10, 20, 30}, []int64{all[0].ID, all[1].ID, all[2].ID})

		page, err := s.ListAccounts(ctx, model.AccountFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, int64(20), page[0].ID)

		paid, err := s.ListAccounts(ctx, model.AccountFilter{SubscribedOnly: true})
		require.NoError(t, err)
		require.Len(t, paid, 1)
		assert.Equal(t, int64(20), paid[0].ID)
	})

	if !opts.Concurrent {
		return
	}

	t.Run("concurrent units of work serialize per account", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		seed(t, s, 1)

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Atomic(ctx, 1, func(tx outbound.LedgerTx) error {
					acc, err := tx.LoadAccount(1)
					if err != nil {
						return err
					}
					acc.RequestsToday++
					return tx.SaveAccount(acc)
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		acc, err := s.GetAccount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, n, acc.RequestsToday)
	})
}

func newAccount(id int64, quota int) *model.Account {
	return &model.Account{ID: id, ServiceDay: day1, QuotaRemaining: model.IntPtr(quota)}
}

func newPayment(accountID int64, provider model.PaymentProvider, externalID string, createdAt time.Time) *model.Payment {
	return &model.Payment{
		AccountID:  accountID,
		Provider:   provider,
		ExternalID: externalID,
		Amount:     19900,
		Currency:   "RUB",
		Status:     model.PaymentStatusPending,
		Raw:        []byte(`{"id":"` + externalID + `"}`),
		CreatedAt:  createdAt,
	}
}

func seed(t *testing.T, s outbound.LedgerStorePort, id int64) {
	t.Helper()
	require.NoError(t, s.Atomic(context.Background(), id, func(tx outbound.LedgerTx) error {
		_, err := tx.CreateAccount(newAccount(id, 5))
		return err
	}))
}

func insert(t *testing.T, s outbound.LedgerStorePort, p *model.Payment) {
	t.Helper()
	require.NoError(t, s.Atomic(context.Background(), p.AccountID, func(tx outbound.LedgerTx) error {
		ok, err := tx.InsertPaymentIfAbsent(p)
		if err == nil && !ok {
			t.Fatalf("payment %s already present", p.ExternalID)
		}
		return err
	}))
}
