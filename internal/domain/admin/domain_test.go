package admin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/talkmeter/server/internal/adapter/outbound/memory"
	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/utils/clock"
	"go.uber.org/zap"
)

// --- Mock Implementations ---

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) StoreSnapshot(ctx context.Context, snap *model.AccountSnapshot) (string, error) {
	args := m.Called(ctx, snap)
	return args.String(0), args.Error(1)
}

// --- Helpers ---

type fixture struct {
	domain  AdminDomain
	store   *memory.Store
	clock   *clock.Manual
	archive *MockArchive
}

func newFixture(t *testing.T, withArchive bool) *fixture {
	t.Helper()
	m := clock.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cal, err := clock.NewCalendar(m, "UTC")
	require.NoError(t, err)
	store := memory.NewStore()

	f := &fixture{store: store, clock: m}
	var archive outbound.ArchivePort
	if withArchive {
		f.archive = new(MockArchive)
		archive = f.archive
	}
	f.domain = NewAdminDomain(store, archive, cal, account.DefaultConfig(), nil, zap.NewNop())
	return f
}

func (f *fixture) today() time.Time {
	return clock.DayOf(f.clock.Now(), time.UTC)
}

func (f *fixture) seed(t *testing.T, id int64) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.store.Atomic(context.Background(), id, func(tx outbound.LedgerTx) error {
		acc, err := tx.CreateAccount(account.NewAccount(id, f.today(), account.DefaultConfig()))
		if err != nil {
			return err
		}
		account.Consume(acc, f.today())
		if err := tx.SaveAccount(acc); err != nil {
			return err
		}
		if err := tx.AppendInteraction(&model.Interaction{
			AccountID: id, ServiceDay: f.today(), Input: "hi", Output: "hello", CreatedAt: now,
		}); err != nil {
			return err
		}
		_, err = tx.InsertPaymentIfAbsent(&model.Payment{
			AccountID: id, Provider: model.PaymentProviderCard, ExternalID: fmt.Sprintf("pay_%d", id),
			Amount: 100, Currency: "RUB", Status: model.PaymentStatusPending, CreatedAt: now,
		})
		return err
	}))
}

// --- Tests ---

func TestAdminDomain_ListAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, 3)
	f.seed(t, 1)
	f.seed(t, 2)

	_, err := f.domain.Grant30Days(ctx, 2)
	require.NoError(t, err)

	all, err := f.domain.ListAccounts(ctx, model.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(3), all[2].ID)

	subs, err := f.domain.ListAccounts(ctx, model.AccountFilter{SubscribedOnly: true})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(2), subs[0].ID)

	page, err := f.domain.ListAccounts(ctx, model.AccountFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(2), page[0].ID)
}

func TestAdminDomain_GetAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("never creates", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.domain.GetAccount(ctx, 42)
		assert.ErrorIs(t, err, account.ErrAccountNotFound)

		acc, err := f.store.GetAccount(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, acc)
	})

	t.Run("normalizes", func(t *testing.T) {
		f := newFixture(t, false)
		f.seed(t, 1)
		f.clock.Advance(24 * time.Hour)

		acc, err := f.domain.GetAccount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, f.today(), acc.ServiceDay)
		assert.Equal(t, 0, acc.RequestsToday)
		assert.Equal(t, 5, *acc.QuotaRemaining)
	})

	t.Run("invalid id", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.domain.GetAccount(ctx, -1)
		assert.ErrorIs(t, err, account.ErrInvalidAccountID)
	})
}

func TestAdminDomain_Grant30Days(t *testing.T) {
	ctx := context.Background()

	t.Run("creates lazily", func(t *testing.T) {
		f := newFixture(t, false)
		acc, err := f.domain.Grant30Days(ctx, 9)
		require.NoError(t, err)
		assert.True(t, acc.Subscribed)
		assert.Nil(t, acc.QuotaRemaining)
		assert.Equal(t, clock.AddDays(f.today(), 30), *acc.SubscriptionEnds)

		snap, err := f.store.Snapshot(ctx, 9)
		require.NoError(t, err)
		assert.Empty(t, snap.Payments)
	})

	t.Run("replaces window", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.domain.Grant30Days(ctx, 1)
		require.NoError(t, err)

		f.clock.Advance(20 * 24 * time.Hour)
		acc, err := f.domain.Grant30Days(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, f.today(), *acc.SubscriptionStarted)
		assert.Equal(t, clock.AddDays(f.today(), 30), *acc.SubscriptionEnds)
	})
}

func TestAdminDomain_ResetToFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	_, err := f.domain.Grant30Days(ctx, 1)
	require.NoError(t, err)

	acc, err := f.domain.ResetToFree(ctx, 1)
	require.NoError(t, err)
	assert.False(t, acc.Subscribed)
	assert.Nil(t, acc.SubscriptionStarted)
	assert.Nil(t, acc.SubscriptionEnds)
	assert.Equal(t, 5, *acc.QuotaRemaining)
	assert.False(t, acc.PaidActive(f.today()))
}

func TestAdminDomain_DeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades", func(t *testing.T) {
		f := newFixture(t, false)
		f.seed(t, 1)
		f.seed(t, 2)

		require.NoError(t, f.domain.DeleteAccount(ctx, 1))

		snap, err := f.store.Snapshot(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, snap)
		recs, err := f.store.ListInteractions(ctx, 1, f.today())
		require.NoError(t, err)
		assert.Empty(t, recs)
		p, err := f.store.FindPayment(ctx, model.PaymentProviderCard, "pay_1")
		require.NoError(t, err)
		assert.Nil(t, p)

		other, err := f.store.Snapshot(ctx, 2)
		require.NoError(t, err)
		require.NotNil(t, other)
		assert.Len(t, other.Interactions, 1)
		assert.Len(t, other.Payments, 1)
	})

	t.Run("absent", func(t *testing.T) {
		f := newFixture(t, false)
		assert.ErrorIs(t, f.domain.DeleteAccount(ctx, 5), account.ErrAccountNotFound)
	})

	t.Run("archives first", func(t *testing.T) {
		f := newFixture(t, true)
		f.seed(t, 1)
		f.archive.On("StoreSnapshot", mock.Anything, mock.MatchedBy(func(s *model.AccountSnapshot) bool {
			return s.Account.ID == 1 && len(s.Interactions) == 1 && len(s.Payments) == 1
		})).Return("s3://bucket/accounts/1.json", nil).Once()

		require.NoError(t, f.domain.DeleteAccount(ctx, 1))
		f.archive.AssertExpectations(t)
	})

	t.Run("archive failure keeps data", func(t *testing.T) {
		f := newFixture(t, true)
		f.seed(t, 1)
		f.archive.On("StoreSnapshot", mock.Anything, mock.Anything).Return("", errors.New("access denied")).Once()

		assert.Error(t, f.domain.DeleteAccount(ctx, 1))

		acc, err := f.store.GetAccount(ctx, 1)
		require.NoError(t, err)
		assert.NotNil(t, acc)
	})
}

func TestAdminDomain_ListUnresolvedPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, 1)

	fresh, err := f.domain.ListUnresolvedPayments(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	f.clock.Advance(time.Hour)
	stale, err := f.domain.ListUnresolvedPayments(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}
