// Package flows implements the multi-step dialog handlers: the /start plan
// menu, the donate flow, and the operator post-planning flow. Each flow is a
// typed state machine over the fsm store; inputs that do not match the
// current state are ignored silently, since stale keyboards outlive frames.
package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/dispatch"
	"github.com/juicyfox/juicybot/internal/domain"
	"github.com/juicyfox/juicybot/internal/fsm"
	"github.com/juicyfox/juicybot/internal/payments"
	"github.com/juicyfox/juicybot/internal/repo"
	"github.com/juicyfox/juicybot/internal/telegram"
)

// planTimeLayout is how operators type schedule times. All times are UTC.
const planTimeLayout = "2006-01-02 15:04"

// donateAssets are the currencies offered in the donate flow.
var donateAssets = []string{"USDT", "TON", "BTC", "ETH"}

// Messenger is the outbound Telegram surface the flows need.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	SendMessageMarkup(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// InvoiceIssuer creates provider invoices.
type InvoiceIssuer interface {
	CreateInvoice(ctx context.Context, asset string, amount decimal.Decimal, description string, payload map[string]any) (*payments.Invoice, error)
}

// USDConverter converts USD prices into provider assets.
type USDConverter interface {
	FromUSD(ctx context.Context, usd decimal.Decimal, asset string) (decimal.Decimal, error)
}

// Poster enqueues scheduled posts.
type Poster interface {
	Enqueue(ctx context.Context, chatID int64, kind, text, fileRef string, runAt time.Time) error
	EnqueueBroadcast(ctx context.Context, kind, text, fileRef string, runAt time.Time) (int, error)
}

// Service wires the dialog flows. It implements dispatch.FlowService.
type Service struct {
	db      *gorm.DB
	cfg     config.Config
	tg      Messenger
	store   *fsm.Store
	issuer  InvoiceIssuer
	convert USDConverter
	poster  Poster
	log     zerolog.Logger
}

// NewService constructs the flow handlers.
func NewService(db *gorm.DB, cfg config.Config, tg Messenger, store *fsm.Store, issuer InvoiceIssuer, convert USDConverter, poster Poster, log zerolog.Logger) *Service {
	return &Service{db: db, cfg: cfg, tg: tg, store: store, issuer: issuer, convert: convert, poster: poster, log: log}
}

// Active reports whether a dialog frame exists for (chatID, userID).
func (s *Service) Active(chatID, userID int64) bool {
	return s.store.Active(chatID, userID)
}

// HandleCommand handles private slash commands. Returns false for commands
// this service does not own.
func (s *Service) HandleCommand(ctx context.Context, msg *models.Message, cmd string) (bool, error) {
	if msg.From == nil {
		return false, nil
	}
	switch cmd {
	case "/start":
		s.store.Clear(msg.Chat.ID, msg.From.ID)
		_, err := s.tg.SendMessageMarkup(ctx, msg.Chat.ID,
			"Hey 💋 Pick your access plan, or support me with /donate:",
			planKeyboard(s.cfg))
		return true, err

	case "/donate":
		s.store.Clear(msg.Chat.ID, msg.From.ID)
		s.store.SetState(msg.Chat.ID, msg.From.ID, fsm.StateDonateCurrency)
		_, err := s.tg.SendMessageMarkup(ctx, msg.Chat.ID,
			"Choose a currency:", donateKeyboard())
		return true, err

	case "/cancel":
		s.store.Clear(msg.Chat.ID, msg.From.ID)
		_, err := s.tg.SendMessage(ctx, msg.Chat.ID, "Cancelled.")
		return true, err
	}
	return false, nil
}

// HandleMessage feeds a private text message into the active dialog frame.
func (s *Service) HandleMessage(ctx context.Context, msg *models.Message) error {
	if msg.From == nil {
		return nil
	}
	frame, ok := s.store.Get(msg.Chat.ID, msg.From.ID)
	if !ok {
		return nil
	}
	switch frame.State {
	case fsm.StateDonateAmount:
		return s.donateAmountEntered(ctx, msg, frame)
	default:
		// Text arriving in a button-driven state is not an input.
		return nil
	}
}

// HandleCallback applies a decoded inline-keyboard action.
func (s *Service) HandleCallback(ctx context.Context, cb *models.CallbackQuery, act dispatch.Action) error {
	chatID, msgID := callbackOrigin(cb)
	userID := cb.From.ID

	switch a := act.(type) {
	case dispatch.PayPlan:
		return s.planChosen(ctx, cb, chatID, userID, a.PlanCode)

	case dispatch.CancelInvoice:
		return s.invoiceCancelled(ctx, cb, chatID, userID, msgID, a.InvoiceID)

	case dispatch.DonateCurrency:
		return s.donateCurrencyChosen(ctx, cb, chatID, userID, a.Currency)

	case dispatch.DonateCancel:
		s.store.Clear(chatID, userID)
		return s.answer(ctx, cb, "Cancelled")

	case dispatch.PostTarget:
		return s.planTargetChosen(ctx, cb, chatID, userID, a.Target)

	case dispatch.PostConfirm:
		return s.planConfirmed(ctx, cb, chatID, userID)

	case dispatch.PostCancel:
		s.store.Clear(chatID, userID)
		return s.answer(ctx, cb, "Plan discarded")
	}
	return nil
}

// answer acknowledges a callback, tolerating expired callback ids.
func (s *Service) answer(ctx context.Context, cb *models.CallbackQuery, text string) error {
	if err := s.tg.AnswerCallback(ctx, cb.ID, text, false); err != nil {
		s.log.Debug().Err(err).Msg("callback answer failed")
	}
	return nil
}

func (s *Service) alert(ctx context.Context, cb *models.CallbackQuery, text string) error {
	if err := s.tg.AnswerCallback(ctx, cb.ID, text, true); err != nil {
		s.log.Debug().Err(err).Msg("callback alert failed")
	}
	return nil
}

// callbackOrigin extracts the chat and message the pressed keyboard lives in.
func callbackOrigin(cb *models.CallbackQuery) (chatID int64, messageID int) {
	if cb.Message.Message != nil {
		return cb.Message.Message.Chat.ID, cb.Message.Message.ID
	}
	if cb.Message.InaccessibleMessage != nil {
		return cb.Message.InaccessibleMessage.Chat.ID, cb.Message.InaccessibleMessage.MessageID
	}
	return cb.From.ID, 0
}

// ---- keyboards ----

func planKeyboard(cfg config.Config) *models.InlineKeyboardMarkup {
	rows := [][]models.InlineKeyboardButton{
		{{Text: fmt.Sprintf("VIP 30 days — $%s", cfg.VIPPriceUSD.StringFixed(0)), CallbackData: "pay:vip_30d"}},
	}
	for _, code := range []string{"chat_10d", "chat_20d", "chat_30d"} {
		plan, _ := domain.PlanByCode(code)
		price := cfg.ChatPriceUSD[code]
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         fmt.Sprintf("%s — $%s", plan.Title, price.StringFixed(0)),
			CallbackData: "pay:" + code,
		}})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func donateKeyboard() *models.InlineKeyboardMarkup {
	row := make([]models.InlineKeyboardButton, 0, len(donateAssets))
	for _, a := range donateAssets {
		row = append(row, models.InlineKeyboardButton{Text: a, CallbackData: "doncur:" + a})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		row,
		{{Text: "Cancel", CallbackData: "don:cancel"}},
	}}
}

func cancelInvoiceKeyboard(invoiceID string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: "Cancel payment", CallbackData: "payc:" + invoiceID}},
	}}
}

func planTargetKeyboard(subscribers int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{
			{Text: "VIP channel", CallbackData: "post:target:vip"},
			{Text: "Life channel", CallbackData: "post:target:life"},
		},
		{
			{Text: fmt.Sprintf("All subscribers (%d)", subscribers), CallbackData: "post:target:all"},
			{Text: "Cancel", CallbackData: "post:cancel"},
		},
	}}
}

func confirmKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{
			{Text: "Publish ✅", CallbackData: "post:confirm"},
			{Text: "Discard ❌", CallbackData: "post:cancel"},
		},
	}}
}

// ---- payments: plan purchase ----

func (s *Service) planChosen(ctx context.Context, cb *models.CallbackQuery, chatID, userID int64, planCode string) error {
	plan, ok := domain.PlanByCode(planCode)
	if !ok {
		return s.alert(ctx, cb, "Unknown plan")
	}
	price := s.planPrice(plan)
	if price.IsZero() {
		return s.alert(ctx, cb, "Plan is not for sale right now")
	}

	inv, err := s.issuer.CreateInvoice(ctx, "USDT", price, plan.Title, map[string]any{
		"user_id":   userID,
		"plan_code": plan.Code,
	})
	if err != nil {
		s.log.Error().Err(err).Str("plan", plan.Code).Msg("invoice creation failed")
		return s.alert(ctx, cb, "Payment service is unavailable, try again later")
	}

	if err := repo.CreatePendingInvoice(ctx, s.db, domain.PendingInvoice{
		InvoiceID:    inv.InvoiceID,
		UserID:       userID,
		PlanCode:     plan.Code,
		Currency:     "USDT",
		PlanCallback: "pay:" + plan.Code,
		PlanName:     plan.Title,
		Price:        price,
		PeriodDays:   plan.Days,
	}); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", inv.InvoiceID).Msg("pending invoice record failed")
	}

	text := fmt.Sprintf("%s — $%s\nPay here: %s", plan.Title, price.StringFixed(2), inv.PayURL)
	if _, err := s.tg.SendMessageMarkup(ctx, chatID, text, cancelInvoiceKeyboard(inv.InvoiceID)); err != nil {
		return fmt.Errorf("send invoice message: %w", err)
	}
	return s.answer(ctx, cb, "")
}

func (s *Service) planPrice(plan domain.Plan) decimal.Decimal {
	if plan.Target == domain.TargetVIPChannel {
		return s.cfg.VIPPriceUSD
	}
	return s.cfg.ChatPriceUSD[plan.Code]
}

func (s *Service) invoiceCancelled(ctx context.Context, cb *models.CallbackQuery, chatID, userID int64, msgID int, invoiceID string) error {
	// Only the buyer may cancel; a forwarded keyboard must not kill someone
	// else's open invoice.
	pi, err := repo.GetPendingInvoice(ctx, s.db, invoiceID)
	switch {
	case err == nil && pi.UserID != userID:
		return s.alert(ctx, cb, "This invoice belongs to someone else")
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		s.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("pending invoice lookup failed")
	}

	if err := repo.DeletePendingInvoice(ctx, s.db, invoiceID); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("pending invoice delete failed")
	}
	if msgID != 0 {
		if err := s.tg.DeleteMessage(ctx, chatID, msgID); err != nil {
			s.log.Debug().Err(err).Msg("invoice message delete failed")
		}
	}
	return s.answer(ctx, cb, "Payment cancelled")
}

// ---- donate flow ----

func (s *Service) donateCurrencyChosen(ctx context.Context, cb *models.CallbackQuery, chatID, userID int64, currency string) error {
	frame, ok := s.store.Get(chatID, userID)
	if !ok || frame.State != fsm.StateDonateCurrency {
		return s.answer(ctx, cb, "")
	}
	s.store.UpdateData(chatID, userID, map[string]string{"currency": currency})
	s.store.SetState(chatID, userID, fsm.StateDonateAmount)
	if _, err := s.tg.SendMessage(ctx, chatID, "How much would you like to send, in USD? (e.g. 10)"); err != nil {
		return err
	}
	return s.answer(ctx, cb, "")
}

func (s *Service) donateAmountEntered(ctx context.Context, msg *models.Message, frame fsm.Frame) error {
	chatID, userID := msg.Chat.ID, msg.From.ID

	usd, err := decimal.NewFromString(strings.TrimSpace(strings.TrimPrefix(msg.Text, "$")))
	if err != nil || usd.LessThanOrEqual(decimal.Zero) {
		_, err := s.tg.SendMessage(ctx, chatID, "Please send a positive number, like 10 or 25.50")
		return err
	}

	asset := frame.Data["currency"]
	amount, err := s.convert.FromUSD(ctx, usd, asset)
	if err != nil {
		s.log.Error().Err(err).Str("asset", asset).Msg("rate conversion failed")
		_, sendErr := s.tg.SendMessage(ctx, chatID, "That currency is unavailable right now, try another one with /donate")
		s.store.Clear(chatID, userID)
		return sendErr
	}

	inv, err := s.issuer.CreateInvoice(ctx, asset, amount, "Donation", map[string]any{
		"user_id": userID,
		"donate":  true,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("donation invoice failed")
		_, sendErr := s.tg.SendMessage(ctx, chatID, "Payment service is unavailable, try again later")
		s.store.Clear(chatID, userID)
		return sendErr
	}

	if err := repo.CreatePendingInvoice(ctx, s.db, domain.PendingInvoice{
		InvoiceID: inv.InvoiceID,
		UserID:    userID,
		Currency:  asset,
		PlanName:  "Donation",
		Price:     usd,
	}); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", inv.InvoiceID).Msg("pending invoice record failed")
	}

	s.store.Clear(chatID, userID)
	text := fmt.Sprintf("Thank you 💖 %s %s\nPay here: %s", amount.String(), asset, inv.PayURL)
	_, err = s.tg.SendMessageMarkup(ctx, chatID, text, cancelInvoiceKeyboard(inv.InvoiceID))
	return err
}

// ---- post-plan flow (operator group) ----

// HandlePlanMessage feeds a message in the post-plan group into the planner.
func (s *Service) HandlePlanMessage(ctx context.Context, msg *models.Message) error {
	if msg.From == nil {
		return nil
	}
	chatID, userID := msg.Chat.ID, msg.From.ID

	if strings.HasPrefix(msg.Text, "/post") {
		subscribers, err := repo.CountRelayUsers(ctx, s.db)
		if err != nil {
			return fmt.Errorf("relay user count: %w", err)
		}
		s.store.Clear(chatID, userID)
		s.store.SetState(chatID, userID, fsm.StatePlanTarget)
		_, err = s.tg.SendMessageMarkup(ctx, chatID, "Where should this post go?", planTargetKeyboard(subscribers))
		return err
	}

	frame, ok := s.store.Get(chatID, userID)
	if !ok {
		return nil
	}
	switch frame.State {
	case fsm.StatePlanTime:
		return s.planTimeEntered(ctx, msg)
	case fsm.StatePlanContent:
		return s.planContentEntered(ctx, msg)
	default:
		return nil
	}
}

func (s *Service) planTargetChosen(ctx context.Context, cb *models.CallbackQuery, chatID, userID int64, target string) error {
	frame, ok := s.store.Get(chatID, userID)
	if !ok || frame.State != fsm.StatePlanTarget {
		return s.answer(ctx, cb, "")
	}
	s.store.UpdateData(chatID, userID, map[string]string{"target": target})
	s.store.SetState(chatID, userID, fsm.StatePlanTime)
	if _, err := s.tg.SendMessage(ctx, chatID,
		"When? Send the time as YYYY-MM-DD HH:MM, in UTC."); err != nil {
		return err
	}
	return s.answer(ctx, cb, "")
}

func (s *Service) planTimeEntered(ctx context.Context, msg *models.Message) error {
	chatID, userID := msg.Chat.ID, msg.From.ID

	runAt, err := time.ParseInLocation(planTimeLayout, strings.TrimSpace(msg.Text), time.UTC)
	if err != nil {
		_, sendErr := s.tg.SendMessage(ctx, chatID, "Could not read that time. Format: 2026-01-31 18:00 (UTC)")
		return sendErr
	}
	if runAt.Before(time.Now().UTC()) {
		_, sendErr := s.tg.SendMessage(ctx, chatID, "That time is in the past. Pick a future time (UTC).")
		return sendErr
	}

	s.store.UpdateData(chatID, userID, map[string]string{"run_at": runAt.Format(time.RFC3339)})
	s.store.SetState(chatID, userID, fsm.StatePlanContent)
	_, err = s.tg.SendMessage(ctx, chatID, "Now send the content: text or a single media message.")
	return err
}

func (s *Service) planContentEntered(ctx context.Context, msg *models.Message) error {
	chatID, userID := msg.Chat.ID, msg.From.ID

	kind, fileRef := telegram.ClassifyMessage(msg)
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if kind == domain.PostKindText && strings.TrimSpace(text) == "" {
		_, err := s.tg.SendMessage(ctx, chatID, "Empty message. Send text or media.")
		return err
	}

	s.store.UpdateData(chatID, userID, map[string]string{
		"kind":     kind,
		"text":     text,
		"file_ref": fileRef,
	})
	s.store.SetState(chatID, userID, fsm.StatePlanConfirm)

	frame, _ := s.store.Get(chatID, userID)
	summary := fmt.Sprintf("Post plan:\n• target: %s\n• time: %s UTC\n• kind: %s",
		frame.Data["target"], frame.Data["run_at"], kind)
	_, err := s.tg.SendMessageMarkup(ctx, chatID, summary, confirmKeyboard())
	return err
}

func (s *Service) planConfirmed(ctx context.Context, cb *models.CallbackQuery, chatID, userID int64) error {
	frame, ok := s.store.Get(chatID, userID)
	if !ok || frame.State != fsm.StatePlanConfirm {
		return s.answer(ctx, cb, "")
	}

	runAt, err := time.Parse(time.RFC3339, frame.Data["run_at"])
	if err != nil {
		s.store.Clear(chatID, userID)
		return s.alert(ctx, cb, "Plan corrupted, start over with /post")
	}
	kind, text, fileRef := frame.Data["kind"], frame.Data["text"], frame.Data["file_ref"]

	var confirmation string
	switch target := frame.Data["target"]; target {
	case "all":
		n, err := s.poster.EnqueueBroadcast(ctx, kind, text, fileRef, runAt)
		if err != nil {
			return fmt.Errorf("broadcast enqueue: %w", err)
		}
		confirmation = fmt.Sprintf("Scheduled for %d subscribers at %s UTC", n, runAt.Format(planTimeLayout))
	case "vip":
		if err := s.poster.Enqueue(ctx, s.cfg.VIPChannelID, kind, text, fileRef, runAt); err != nil {
			return fmt.Errorf("enqueue vip post: %w", err)
		}
		confirmation = "Scheduled for the VIP channel at " + runAt.Format(planTimeLayout) + " UTC"
	case "life":
		if err := s.poster.Enqueue(ctx, s.cfg.LifeChannelID, kind, text, fileRef, runAt); err != nil {
			return fmt.Errorf("enqueue life post: %w", err)
		}
		confirmation = "Scheduled for the Life channel at " + runAt.Format(planTimeLayout) + " UTC"
	default:
		id, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			s.store.Clear(chatID, userID)
			return s.alert(ctx, cb, "Unknown target, start over with /post")
		}
		if err := s.poster.Enqueue(ctx, id, kind, text, fileRef, runAt); err != nil {
			return fmt.Errorf("enqueue post: %w", err)
		}
		confirmation = fmt.Sprintf("Scheduled for chat %d at %s UTC", id, runAt.Format(planTimeLayout))
	}

	s.store.Clear(chatID, userID)
	if _, err := s.tg.SendMessage(ctx, chatID, confirmation); err != nil {
		return err
	}
	return s.answer(ctx, cb, "Scheduled")
}
