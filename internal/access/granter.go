// Package access turns canonical "paid" payment events into time-limited
// single-use invite links, exactly once per invoice. Grant rows are the
// durable record; the DM carrying the link is best effort.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/domain"
	"github.com/juicyfox/juicybot/internal/metrics"
	"github.com/juicyfox/juicybot/internal/payments"
	"github.com/juicyfox/juicybot/internal/repo"
)

var (
	// ErrUnknownPlan marks events whose meta names a plan outside the catalog.
	ErrUnknownPlan = errors.New("unknown plan code")

	// ErrMissingUser marks events without a usable meta.user_id.
	ErrMissingUser = errors.New("meta user_id missing")

	// ErrMissingChatID marks plans whose target chat is not configured.
	ErrMissingChatID = errors.New("plan target chat not configured")

	// ErrProvider marks invite-link refusals from the chat platform. The
	// payment is recorded; re-driving the grant is an operator action.
	ErrProvider = errors.New("invite link creation refused")
)

// Inviter is the outbound Telegram surface the granter needs.
type Inviter interface {
	CreateInviteLink(ctx context.Context, chatID int64, expire time.Time, memberLimit int) (string, error)
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
}

// Result reports what Process did with an event.
type Result struct {
	Handled    bool
	InviteLink string
	Until      time.Time
}

// Granter issues access grants for paid events.
type Granter struct {
	db  *gorm.DB
	cfg config.Config
	tg  Inviter
	log zerolog.Logger
}

// NewGranter wires a Granter.
func NewGranter(db *gorm.DB, cfg config.Config, tg Inviter, log zerolog.Logger) *Granter {
	return &Granter{db: db, cfg: cfg, tg: tg, log: log}
}

// Process issues a grant for a paid event. The caller is responsible for
// event-level deduplication (the payment_events unique index); Process
// assumes ev is the first paid observation of its invoice.
func (g *Granter) Process(ctx context.Context, ev payments.CanonicalEvent) (Result, error) {
	if ev.Status != domain.PayStatusPaid {
		metrics.AccessGrants.WithLabelValues("rejected").Inc()
		return Result{}, nil
	}
	userID, ok := ev.MetaInt64("user_id")
	if !ok || userID == 0 {
		metrics.AccessGrants.WithLabelValues("rejected").Inc()
		return Result{}, ErrMissingUser
	}
	planCode, _ := ev.MetaString("plan_code")
	plan, ok := domain.PlanByCode(planCode)
	if !ok {
		metrics.AccessGrants.WithLabelValues("rejected").Inc()
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownPlan, planCode)
	}

	chatID := g.targetChat(plan)
	if chatID == 0 {
		metrics.AccessGrants.WithLabelValues("rejected").Inc()
		return Result{}, fmt.Errorf("%w: plan %s", ErrMissingChatID, plan.Code)
	}

	until := time.Now().UTC().Add(plan.Duration())
	link, err := g.tg.CreateInviteLink(ctx, chatID, until, 1)
	if err != nil {
		metrics.AccessGrants.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	grant, err := repo.InsertAccessGrant(ctx, g.db, domain.AccessGrant{
		UserID:     userID,
		PlanCode:   plan.Code,
		InviteLink: link,
		Until:      until,
	})
	if err != nil {
		metrics.AccessGrants.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("record grant: %w", err)
	}

	// Best-effort DM; a blocked bot must not abort a recorded grant.
	text := fmt.Sprintf("Payment received 🎉\nYour %s access link (valid until %s, single use):\n%s",
		plan.Title, until.Format("2006-01-02"), link)
	if _, err := g.tg.SendMessage(ctx, userID, text); err != nil {
		g.log.Warn().Err(err).Int64("user_id", userID).Msg("grant DM failed")
	}

	metrics.AccessGrants.WithLabelValues("granted").Inc()
	g.log.Info().
		Int64("user_id", userID).
		Str("plan", plan.Code).
		Time("until", grant.Until).
		Msg("access granted")

	return Result{Handled: true, InviteLink: link, Until: until}, nil
}

// ProcessPaid adapts Process to the payments.Granter contract.
func (g *Granter) ProcessPaid(ctx context.Context, ev payments.CanonicalEvent) error {
	_, err := g.Process(ctx, ev)
	return err
}

func (g *Granter) targetChat(plan domain.Plan) int64 {
	switch plan.Target {
	case domain.TargetVIPChannel:
		return g.cfg.VIPChannelID
	case domain.TargetChatGroup:
		return g.cfg.ChatGroupID
	default:
		return 0
	}
}
