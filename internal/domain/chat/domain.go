package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Config holds conversation turn settings.
type Config struct {
	// TurnTimeout bounds one generator call.
	TurnTimeout time.Duration
	// MemoryTimeout bounds the background memory update.
	MemoryTimeout time.Duration
	// RetryPrefix is prepended to the user text on the retry after an empty reply.
	RetryPrefix string
	// FallbackReply is used when the retry is empty too.
	FallbackReply string
	// MemoryPrompt asks the generator to merge one turn into the memory note.
	MemoryPrompt string
}

// DefaultConfig returns default turn settings.
func DefaultConfig() Config {
	return Config{
		TurnTimeout:   60 * time.Second,
		MemoryTimeout: 60 * time.Second,
		RetryPrefix:   "Коротко и по делу ответь пользователю:",
		FallbackReply: "Понял. Давай коротко и по делу:\n" +
			"- Что случилось?\n" +
			"- Что ты хочешь получить от ответа прямо сейчас?\n" +
			"Если сложно, напиши одной фразой, разберём вместе.",
		MemoryPrompt: "Обнови краткую заметку о пользователе по новому фрагменту диалога. " +
			"Сохрани только устойчивые факты и предпочтения. Верни только заметку.",
	}
}

// TurnRequest is one incoming user message.
type TurnRequest struct {
	AccountID int64  `json:"account_id"`
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
	FullName  string `json:"full_name,omitempty"`
}

// TurnResult is the outcome of a turn. A denied turn has no reply.
type TurnResult struct {
	Allowed     bool                 `json:"allowed"`
	Reason      account.DenyReason   `json:"reason,omitempty"`
	Reply       string               `json:"reply,omitempty"`
	Fallback    bool                 `json:"fallback,omitempty"`
	Interaction *model.Interaction   `json:"interaction,omitempty"`
	Status      *model.AccountStatus `json:"status,omitempty"`
}

// ChatDomain runs conversation turns.
type ChatDomain interface {
	// Turn gates, answers and records one message while holding the account guard.
	Turn(ctx context.Context, req *TurnRequest) (*TurnResult, error)

	// Wait blocks until background memory updates finish.
	Wait()
}

// chatDomain implements ChatDomain.
type chatDomain struct {
	accounts  account.AccountDomain
	guard     outbound.AccountGuardPort
	generator outbound.GeneratorPort
	filter    MessageFilter
	cfg       Config
	logger    *zap.Logger

	bg sync.WaitGroup
}

// NewChatDomain creates a new chat domain service. A nil filter uses the
// default acknowledgement filter.
func NewChatDomain(
	accounts account.AccountDomain,
	guard outbound.AccountGuardPort,
	generator outbound.GeneratorPort,
	filter MessageFilter,
	cfg Config,
	logger *zap.Logger,
) ChatDomain {
	if filter == nil {
		filter = NewAckFilter(DefaultAckWords)
	}
	return &chatDomain{
		accounts:  accounts,
		guard:     guard,
		generator: generator,
		filter:    filter,
		cfg:       cfg,
		logger:    logger,
	}
}

func (d *chatDomain) Turn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if req.AccountID <= 0 {
		return nil, account.ErrInvalidAccountID
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	release, err := d.guard.Acquire(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, outbound.ErrGuardTimeout) {
			return nil, ErrTurnInProgress
		}
		return nil, fmt.Errorf("acquire account guard: %w", err)
	}
	defer release()

	if err := d.accounts.TouchProfile(ctx, req.AccountID, req.Username, req.FullName); err != nil {
		d.logger.Warn("failed to touch profile", zap.Int64("account_id", req.AccountID), zap.Error(err))
	}

	dec, err := d.accounts.Check(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !dec.Allowed {
		return &TurnResult{Reason: dec.Reason}, nil
	}
	memory := dec.Account.Memory

	reply, fallback, err := d.generate(ctx, req.AccountID, text, memory)
	if err != nil {
		return nil, err
	}

	rec, err := d.accounts.Record(ctx, req.AccountID, text, reply)
	if err != nil {
		return nil, err
	}

	if d.filter(text) {
		d.updateMemory(ctx, req.AccountID, text, reply, memory)
	}

	res := &TurnResult{Allowed: true, Reply: reply, Fallback: fallback, Interaction: rec}
	if st, err := d.accounts.Status(ctx, req.AccountID); err == nil {
		res.Status = st
	}
	return res, nil
}

// generate asks for a reply, retries once with minimal context on an empty
// answer and falls back to a fixed reply.
func (d *chatDomain) generate(ctx context.Context, id int64, text, memory string) (string, bool, error) {
	reply, err := d.call(ctx, text, memory)
	if err != nil {
		d.logger.Warn("generation failed", zap.Int64("account_id", id), zap.Error(err))
		return "", false, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if reply != "" {
		return reply, false, nil
	}

	d.logger.Info("empty reply, retrying with minimal context", zap.Int64("account_id", id))
	reply, err = d.call(ctx, d.cfg.RetryPrefix+"\n"+text, "")
	if err != nil {
		d.logger.Warn("retry generation failed", zap.Int64("account_id", id), zap.Error(err))
	}
	if reply != "" {
		return reply, false, nil
	}
	return d.cfg.FallbackReply, true, nil
}

func (d *chatDomain) call(ctx context.Context, text, history string) (string, error) {
	if d.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TurnTimeout)
		defer cancel()
	}
	out, err := d.generator.Generate(ctx, text, history)
	return strings.TrimSpace(out), err
}

// updateMemory merges the turn into the memory note in the background. The
// request context is detached so the update outlives the response.
func (d *chatDomain) updateMemory(ctx context.Context, id int64, text, reply, memory string) {
	bgCtx := context.WithoutCancel(ctx)

	d.bg.Add(1)
	go func() {
		defer d.bg.Done()

		if d.cfg.MemoryTimeout > 0 {
			var cancel context.CancelFunc
			bgCtx, cancel = context.WithTimeout(bgCtx, d.cfg.MemoryTimeout)
			defer cancel()
		}

		prompt := d.cfg.MemoryPrompt + "\n\nUSER: " + text + "\nBOT: " + reply
		updated, err := d.generator.Generate(bgCtx, prompt, memory)
		if err != nil {
			d.logger.Warn("failed to build memory", zap.Int64("account_id", id), zap.Error(err))
			return
		}
		updated = strings.TrimSpace(updated)
		if updated == "" || updated == strings.TrimSpace(memory) {
			return
		}
		if err := d.accounts.UpdateMemory(bgCtx, id, updated); err != nil {
			d.logger.Warn("failed to save memory", zap.Int64("account_id", id), zap.Error(err))
		}
	}()
}

func (d *chatDomain) Wait() {
	d.bg.Wait()
}
