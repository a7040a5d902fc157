package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerStore implements outbound.LedgerStorePort on gorm.
//
// On postgres every unit of work takes a transaction-scoped advisory lock on
// the account id, so accounts that do not exist yet are serialized too. On
// sqlite the database-level write lock (BEGIN IMMEDIATE) gives the same effect.
type ledgerStore struct {
	db *gorm.DB
}

// NewLedgerStore creates a new ledger store adapter.
func NewLedgerStore(db *gorm.DB) outbound.LedgerStorePort {
	return &ledgerStore{db: db}
}

// AutoMigrate creates or updates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Account{}, &model.Interaction{}, &model.Payment{}); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return errors.Join(outbound.ErrStorageUnavailable, fmt.Errorf("%s: %w", op, err))
}

func (s *ledgerStore) Atomic(ctx context.Context, accountID int64, fn func(tx outbound.LedgerTx) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", accountID).Error; err != nil {
				return storageErr("lock account", err)
			}
		}
		fnErr = fn(&gormTx{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		if errors.Is(err, outbound.ErrStorageUnavailable) {
			return err
		}
		return storageErr("commit ledger transaction", err)
	}
	return nil
}

func (s *ledgerStore) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).First(&acc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get account", err)
	}
	return &acc, nil
}

func (s *ledgerStore) ListAccounts(ctx context.Context, filter model.AccountFilter) ([]*model.Account, error) {
	filter.DefaultLimit()

	query := s.db.WithContext(ctx).Model(&model.Account{})
	if filter.SubscribedOnly {
		query = query.Where("subscribed = ?", true)
	}

	var accounts []*model.Account
	if err := query.Order("id ASC").Offset(filter.Offset).Limit(filter.Limit).Find(&accounts).Error; err != nil {
		return nil, storageErr("list accounts", err)
	}
	return accounts, nil
}

func (s *ledgerStore) FindPayment(ctx context.Context, provider model.PaymentProvider, externalID string) (*model.Payment, error) {
	var p model.Payment
	err := s.db.WithContext(ctx).First(&p, "provider = ? AND external_id = ?", provider, externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find payment", err)
	}
	return &p, nil
}

func (s *ledgerStore) RecentPending(ctx context.Context, accountID int64, provider model.PaymentProvider, since time.Time) (*model.Payment, error) {
	var p model.Payment
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND provider = ? AND status = ? AND created_at >= ?",
			accountID, provider, model.PaymentStatusPending, since).
		Order("created_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find recent pending payment", err)
	}
	return &p, nil
}

func (s *ledgerStore) ListUnresolvedPayments(ctx context.Context, createdBefore time.Time) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := s.db.WithContext(ctx).
		Where("status NOT IN ? AND created_at < ?",
			[]model.PaymentStatus{model.PaymentStatusSucceeded, model.PaymentStatusCanceled}, createdBefore).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, storageErr("list unresolved payments", err)
	}
	return payments, nil
}

func (s *ledgerStore) ListInteractions(ctx context.Context, accountID int64, day time.Time) ([]*model.Interaction, error) {
	var recs []*model.Interaction
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND service_day = ?", accountID, day).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, storageErr("list interactions", err)
	}
	return recs, nil
}

func (s *ledgerStore) ListActiveAccountIDs(ctx context.Context, day time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&model.Interaction{}).
		Distinct("account_id").
		Where("service_day = ?", day).
		Order("account_id ASC").
		Pluck("account_id", &ids).Error
	if err != nil {
		return nil, storageErr("list active accounts", err)
	}
	return ids, nil
}

func (s *ledgerStore) Snapshot(ctx context.Context, accountID int64) (*model.AccountSnapshot, error) {
	acc, err := s.GetAccount(ctx, accountID)
	if err != nil || acc == nil {
		return nil, err
	}

	snap := &model.AccountSnapshot{Account: acc, TakenAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id ASC").Find(&snap.Interactions).Error; err != nil {
		return nil, storageErr("snapshot interactions", err)
	}
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at ASC").Find(&snap.Payments).Error; err != nil {
		return nil, storageErr("snapshot payments", err)
	}
	return snap, nil
}

// gormTx implements outbound.LedgerTx.
type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LoadAccount(id int64) (*model.Account, error) {
	var acc model.Account
	err := t.forUpdate().First(&acc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load account", err)
	}
	return &acc, nil
}

func (t *gormTx) CreateAccount(acc *model.Account) (*model.Account, error) {
	row := acc.Clone()
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, storageErr("create account", err)
	}
	stored, err := t.LoadAccount(acc.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, storageErr("create account", fmt.Errorf("account %d vanished after insert", acc.ID))
	}
	return stored, nil
}

func (t *gormTx) SaveAccount(acc *model.Account) error {
	if err := t.db.Save(acc).Error; err != nil {
		return storageErr("save account", err)
	}
	return nil
}

func (t *gormTx) DeleteAccount(id int64) (bool, error) {
	if err := t.db.Where("account_id = ?", id).Delete(&model.Interaction{}).Error; err != nil {
		return false, storageErr("delete interactions", err)
	}
	if err := t.db.Where("account_id = ?", id).Delete(&model.Payment{}).Error; err != nil {
		return false, storageErr("delete payments", err)
	}
	res := t.db.Where("id = ?", id).Delete(&model.Account{})
	if res.Error != nil {
		return false, storageErr("delete account", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) AppendInteraction(rec *model.Interaction) error {
	if err := t.db.Create(rec).Error; err != nil {
		return storageErr("append interaction", err)
	}
	return nil
}

func (t *gormTx) LastInteraction(accountID int64, day time.Time) (*model.Interaction, error) {
	var rec model.Interaction
	err := t.forUpdate().
		Where("account_id = ? AND service_day = ?", accountID, day).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find last interaction", err)
	}
	return &rec, nil
}

func (t *gormTx) SetSummary(interactionID int64, summary string) error {
	res := t.db.Model(&model.Interaction{}).Where("id = ?", interactionID).Update("summary", summary)
	if res.Error != nil {
		return storageErr("set summary", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set summary: interaction %d not found", interactionID)
	}
	return nil
}

func (t *gormTx) InsertPaymentIfAbsent(p *model.Payment) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	res := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(p)
	if res.Error != nil {
		return false, storageErr("insert payment", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) LockPayment(provider model.PaymentProvider, externalID string) (*model.Payment, error) {
	var p model.Payment
	err := t.forUpdate().First(&p, "provider = ? AND external_id = ?", provider, externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("lock payment", err)
	}
	return &p, nil
}

func (t *gormTx) SavePayment(p *model.Payment) error {
	if err := t.db.Save(p).Error; err != nil {
		return storageErr("save payment", err)
	}
	return nil
}

// Compile-time check
var _ outbound.LedgerStorePort = (*ledgerStore)(nil)
