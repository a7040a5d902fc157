package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
	"go.uber.org/zap"
)

// ErrEmptySummary is returned when a summary text is blank.
var ErrEmptySummary = errors.New("empty summary")

// Config holds daily summary settings.
type Config struct {
	// EmptyDialogText is stored for a day without dialog. The generator is not called.
	EmptyDialogText string
	// Prompt prefixes the dialog text sent to the generator.
	Prompt string
	// Timeout bounds one generator call. Zero means no extra bound.
	Timeout time.Duration
}

// DefaultConfig returns default summary settings.
func DefaultConfig() Config {
	return Config{
		EmptyDialogText: "За сегодня диалогов не было.",
		Prompt:          "Сделай короткую выжимку/заключение по переписке за день (3-6 пунктов):",
		Timeout:         time.Minute,
	}
}

// Report is the outcome of one daily run.
type Report struct {
	Day        time.Time `json:"day"`
	Accounts   int       `json:"accounts"`
	Summarized int       `json:"summarized"`
	Failed     int       `json:"failed"`
}

// SummaryDomain defines the scheduler-facing operations.
type SummaryDomain interface {
	// GetDialogText joins the interactions of one service day as USER/BOT pairs.
	GetDialogText(ctx context.Context, accountID int64, day time.Time) (string, error)

	// SaveSummary attaches text to the last interaction of the day. It reports
	// false when the day has no interaction.
	SaveSummary(ctx context.Context, accountID int64, day time.Time, text string) (bool, error)

	// BuildSummary turns dialog text into a summary.
	BuildSummary(ctx context.Context, dialog string) (string, error)

	// RunDaily summarizes every account active on day. Per-account failures
	// are logged and counted, not returned.
	RunDaily(ctx context.Context, day time.Time) (*Report, error)
}

// summaryDomain implements SummaryDomain.
type summaryDomain struct {
	store     outbound.LedgerStorePort
	generator outbound.GeneratorPort
	cfg       Config
	logger    *zap.Logger
}

// NewSummaryDomain creates a new summary domain service.
func NewSummaryDomain(
	store outbound.LedgerStorePort,
	generator outbound.GeneratorPort,
	cfg Config,
	logger *zap.Logger,
) SummaryDomain {
	return &summaryDomain{
		store:     store,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

func (d *summaryDomain) GetDialogText(ctx context.Context, accountID int64, day time.Time) (string, error) {
	if accountID <= 0 {
		return "", account.ErrInvalidAccountID
	}
	recs, err := d.store.ListInteractions(ctx, accountID, day)
	if err != nil {
		return "", err
	}
	return formatDialog(recs), nil
}

func formatDialog(recs []*model.Interaction) string {
	parts := make([]string, 0, len(recs))
	for _, r := range recs {
		parts = append(parts, "USER: "+r.Input+"\nBOT: "+r.Output)
	}
	return strings.Join(parts, "\n\n")
}

func (d *summaryDomain) SaveSummary(ctx context.Context, accountID int64, day time.Time, text string) (bool, error) {
	if accountID <= 0 {
		return false, account.ErrInvalidAccountID
	}
	if strings.TrimSpace(text) == "" {
		return false, ErrEmptySummary
	}

	saved := false
	err := d.store.Atomic(ctx, accountID, func(tx outbound.LedgerTx) error {
		last, err := tx.LastInteraction(accountID, day)
		if err != nil || last == nil {
			return err
		}
		if err := tx.SetSummary(last.ID, text); err != nil {
			return err
		}
		saved = true
		return nil
	})
	return saved, err
}

func (d *summaryDomain) BuildSummary(ctx context.Context, dialog string) (string, error) {
	if strings.TrimSpace(dialog) == "" {
		return d.cfg.EmptyDialogText, nil
	}
	if d.generator == nil {
		return "", errors.New("no generator configured")
	}

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	out, err := d.generator.Generate(ctx, d.cfg.Prompt+"\n\n"+dialog, "")
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptySummary
	}
	return out, nil
}

func (d *summaryDomain) RunDaily(ctx context.Context, day time.Time) (*Report, error) {
	ids, err := d.store.ListActiveAccountIDs(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}

	report := &Report{Day: day, Accounts: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := d.summarizeOne(ctx, id, day); err != nil {
			report.Failed++
			d.logger.Warn("daily summary failed",
				zap.Int64("account_id", id),
				zap.Time("day", day),
				zap.Error(err),
			)
			continue
		}
		report.Summarized++
	}

	d.logger.Info("daily summary finished",
		zap.Time("day", day),
		zap.Int("accounts", report.Accounts),
		zap.Int("summarized", report.Summarized),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (d *summaryDomain) summarizeOne(ctx context.Context, id int64, day time.Time) error {
	dialog, err := d.GetDialogText(ctx, id, day)
	if err != nil {
		return err
	}
	text, err := d.BuildSummary(ctx, dialog)
	if err != nil {
		return err
	}
	_, err = d.SaveSummary(ctx, id, day, text)
	return err
}
