// Package dispatch is the update ingress: it parses raw webhook bodies,
// claims idempotency, and routes each update to at most one handler group.
// Handler failures are never propagated upstream: a claimed update that
// fails is logged and dropped, since at-most-once handling beats duplicate
// grants.
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/metrics"
	"github.com/juicyfox/juicybot/internal/repo"
)

// RelayService is the private↔group bridge consumed by the dispatcher.
type RelayService interface {
	// HandlePrivateMessage processes a non-command private message.
	HandlePrivateMessage(ctx context.Context, msg *models.Message) error
	// HandleGroupMessage processes a message seen in the operator group.
	HandleGroupMessage(ctx context.Context, msg *models.Message) error
}

// FlowService drives the multi-step dialog flows (donate, post-plan).
type FlowService interface {
	// Active reports whether a dialog frame exists for (chatID, userID).
	Active(chatID, userID int64) bool
	// HandleCommand handles a slash command; the bool result is true when the
	// command was recognized.
	HandleCommand(ctx context.Context, msg *models.Message, cmd string) (bool, error)
	// HandleMessage feeds a private message into the active dialog frame.
	HandleMessage(ctx context.Context, msg *models.Message) error
	// HandlePlanMessage feeds a post-plan group message into the planner flow.
	HandlePlanMessage(ctx context.Context, msg *models.Message) error
	// HandleCallback applies a decoded inline-keyboard action.
	HandleCallback(ctx context.Context, cb *models.CallbackQuery, act Action) error
}

// Dispatcher parses, deduplicates, and routes inbound updates.
type Dispatcher struct {
	db    *gorm.DB
	cfg   config.Config
	log   zerolog.Logger
	relay RelayService
	flows FlowService
}

// New constructs a Dispatcher.
func New(db *gorm.DB, cfg config.Config, relay RelayService, flows FlowService, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{db: db, cfg: cfg, log: log, relay: relay, flows: flows}
}

// Dispatch processes one raw update body and returns the HTTP status the
// webhook endpoint should answer with. It always returns 200 or 204.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) int {
	var update models.Update
	if len(raw) == 0 || json.Unmarshal(raw, &update) != nil {
		return http.StatusNoContent
	}
	// Non-object bodies (e.g. a bare array or string) decode into a zero
	// update; treat them as empty.
	if update.ID == 0 && update.Message == nil && update.CallbackQuery == nil {
		return http.StatusNoContent
	}

	key := UpdateKey(d.cfg.BotID, raw)
	claimed, err := repo.Claim(ctx, d.db, key, d.cfg.UpdateClaimTTL)
	if err != nil {
		d.log.Error().Err(err).Str("key", key).Msg("idempotency claim failed")
		metrics.UpdatesDispatched.WithLabelValues("error").Inc()
		return http.StatusOK
	}
	if !claimed {
		metrics.UpdatesDispatched.WithLabelValues("duplicate").Inc()
		return http.StatusOK
	}

	// The claim is held whatever happens next, so a panicking handler must
	// not take down the ingress.
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Int64("update_id", update.ID).Msg("handler panicked")
			metrics.UpdatesDispatched.WithLabelValues("error").Inc()
		}
	}()

	switch {
	case update.Message != nil:
		d.routeMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		d.routeCallback(ctx, update.CallbackQuery)
	default:
		metrics.UpdatesDispatched.WithLabelValues("ignored").Inc()
	}
	return http.StatusOK
}

func (d *Dispatcher) routeMessage(ctx context.Context, msg *models.Message) {
	switch {
	case msg.Chat.ID == d.cfg.ChatGroupID:
		d.finish(msg.Chat.ID, d.relay.HandleGroupMessage(ctx, msg))

	case msg.Chat.ID == d.cfg.PostPlanGroupID:
		d.finish(msg.Chat.ID, d.flows.HandlePlanMessage(ctx, msg))

	case msg.Chat.Type == models.ChatTypePrivate:
		if cmd, ok := command(msg.Text); ok {
			handled, err := d.flows.HandleCommand(ctx, msg, cmd)
			if err == nil && !handled {
				metrics.UpdatesDispatched.WithLabelValues("ignored").Inc()
				return
			}
			d.finish(msg.Chat.ID, err)
			return
		}
		if msg.From != nil && d.flows.Active(msg.Chat.ID, msg.From.ID) {
			d.finish(msg.Chat.ID, d.flows.HandleMessage(ctx, msg))
			return
		}
		d.finish(msg.Chat.ID, d.relay.HandlePrivateMessage(ctx, msg))

	default:
		metrics.UpdatesDispatched.WithLabelValues("ignored").Inc()
	}
}

func (d *Dispatcher) routeCallback(ctx context.Context, cb *models.CallbackQuery) {
	act, err := ParseCallback(cb.Data)
	if err != nil {
		// Stale keyboards outlive code; unknown data is ignored silently.
		metrics.UpdatesDispatched.WithLabelValues("ignored").Inc()
		return
	}
	d.finish(cb.From.ID, d.flows.HandleCallback(ctx, cb, act))
}

func (d *Dispatcher) finish(chatID int64, err error) {
	if err != nil {
		d.log.Error().Err(err).Int64("chat_id", chatID).Msg("update handler failed")
		metrics.UpdatesDispatched.WithLabelValues("error").Inc()
		return
	}
	metrics.UpdatesDispatched.WithLabelValues("handled").Inc()
}

// command extracts a slash command from message text, stripping any @botname
// suffix. Returns false for ordinary text.
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, true
}
