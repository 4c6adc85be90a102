// Package relay implements the private↔group conversation bridge. Inbound
// private messages from paying users are announced in the operator group with
// a metadata header plus a copy of the original; operator replies to either
// message are copied back to the user. The user directory and the message
// history are durable, the header map is not.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/domain"
	"github.com/juicyfox/juicybot/internal/metrics"
	"github.com/juicyfox/juicybot/internal/repo"
	"github.com/juicyfox/juicybot/internal/sysutil"
	"github.com/juicyfox/juicybot/internal/telegram"
)

// notPaidText is the localized refusal sent to users without access.
const notPaidText = "Access to the chat requires an active subscription. Use /start to see the plans 💋"

// Sender is the outbound Telegram surface the bridge needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
}

// Service is the relay bridge.
type Service struct {
	db      *gorm.DB
	cfg     config.Config
	tg      Sender
	headers *HeaderMap
	log     zerolog.Logger
}

// NewService wires the bridge.
func NewService(db *gorm.DB, cfg config.Config, tg Sender, headers *HeaderMap, log zerolog.Logger) *Service {
	return &Service{db: db, cfg: cfg, tg: tg, headers: headers, log: log}
}

// HandlePrivateMessage registers the sender, gates on access, and relays the
// message into the operator group.
func (s *Service) HandlePrivateMessage(ctx context.Context, msg *models.Message) error {
	if msg.From == nil {
		return nil
	}
	user := msg.From

	if err := repo.UpsertRelayUser(ctx, s.db, domain.RelayUser{
		UserID:   user.ID,
		Username: user.Username,
		FullName: displayName(user),
		Lang:     user.LanguageCode,
		LastSeen: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("upsert relay user: %w", err)
	}
	if err := repo.BumpStreak(ctx, s.db, user.ID, time.Now()); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("streak bump failed")
	}

	allowed, err := repo.HasActiveGrant(ctx, s.db, user.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("access check: %w", err)
	}
	if !allowed {
		metrics.RelayMessages.WithLabelValues("denied").Inc()
		if _, err := s.tg.SendMessage(ctx, msg.Chat.ID, notPaidText); err != nil {
			return fmt.Errorf("send not-paid reply: %w", err)
		}
		return nil
	}

	header, err := s.buildHeader(ctx, user)
	if err != nil {
		return err
	}
	headerID, err := s.tg.SendMessage(ctx, s.cfg.ChatGroupID, header)
	if err != nil {
		return fmt.Errorf("post relay header: %w", err)
	}
	s.headers.Put(headerID, user.ID)

	// The header stays even if the copy fails: operators still see who wrote
	// and can re-ask.
	copyID, err := s.tg.CopyMessage(ctx, s.cfg.ChatGroupID, msg.Chat.ID, msg.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("relay copy failed")
	} else {
		s.headers.Put(copyID, user.ID)
	}
	metrics.RelayHeaderEntries.Set(float64(s.headers.Len()))

	kind, fileRef := telegram.ClassifyMessage(msg)
	if err := repo.AppendRelayMessage(ctx, s.db, domain.RelayMessage{
		UserID:     user.ID,
		Direction:  domain.RelayDirIn,
		Kind:       kind,
		Text:       sysutil.FirstNonEmpty(msg.Text, msg.Caption),
		FileRef:    fileRef,
		GroupMsgID: headerID,
	}); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("history append failed")
	}

	// Optional long-term archive group, separate from the working chat.
	if s.cfg.HistoryGroupID != 0 {
		if _, err := s.tg.CopyMessage(ctx, s.cfg.HistoryGroupID, msg.Chat.ID, msg.ID); err != nil {
			s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("history group copy failed")
		}
	}

	metrics.RelayMessages.WithLabelValues("in").Inc()
	return nil
}

// HandleGroupMessage routes operator replies back to the mapped user.
// A reply whose text is /history answers with the user's dossier instead of
// being relayed. Non-reply group messages and replies to unmapped messages
// are ignored.
func (s *Service) HandleGroupMessage(ctx context.Context, msg *models.Message) error {
	if msg.ReplyToMessage == nil {
		return nil
	}
	userID, ok := s.headers.Get(msg.ReplyToMessage.ID)
	if !ok {
		// Map entry lost (restart or eviction); operators retry via /history.
		return nil
	}

	if isHistoryCommand(msg.Text) {
		return s.sendHistory(ctx, msg.Chat.ID, userID)
	}

	if _, err := s.tg.CopyMessage(ctx, userID, msg.Chat.ID, msg.ID); err != nil {
		return fmt.Errorf("copy reply to user %d: %w", userID, err)
	}

	kind, fileRef := telegram.ClassifyMessage(msg)
	if err := repo.AppendRelayMessage(ctx, s.db, domain.RelayMessage{
		UserID:     userID,
		Direction:  domain.RelayDirOut,
		Kind:       kind,
		Text:       sysutil.FirstNonEmpty(msg.Text, msg.Caption),
		FileRef:    fileRef,
		GroupMsgID: msg.ID,
	}); err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("history append failed")
	}

	metrics.RelayMessages.WithLabelValues("out").Inc()
	return nil
}

// historyPageSize bounds the dossier to the most recent messages.
const historyPageSize = 10

// isHistoryCommand matches /history with an optional @botname suffix.
func isHistoryCommand(text string) bool {
	cmd := strings.TrimSpace(text)
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd == "/history"
}

// sendHistory posts the mapped user's dossier into the operator group:
// identity, streak, purchases per plan, and the latest messages newest first.
func (s *Service) sendHistory(ctx context.Context, groupID, userID int64) error {
	u, err := repo.GetRelayUser(ctx, s.db, userID)
	if err != nil {
		return fmt.Errorf("relay user lookup: %w", err)
	}

	var b strings.Builder
	b.WriteString(u.FullName)
	if u.Username != "" {
		fmt.Fprintf(&b, " (@%s)", u.Username)
	}
	fmt.Fprintf(&b, "\nlast seen: %s", u.LastSeen.Format("2006-01-02 15:04"))

	if st, err := repo.GetStreak(ctx, s.db, userID); err == nil {
		fmt.Fprintf(&b, "\nstreak: %d day(s)", st.Days)
	}

	for _, code := range []string{"vip_30d", "chat_10d", "chat_20d", "chat_30d"} {
		n, err := repo.CountGrantsByPlan(ctx, s.db, userID, code)
		if err != nil || n == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %d purchase(s)", code, n)
	}

	msgs, err := repo.ListRelayMessages(ctx, s.db, userID, 0, historyPageSize)
	if err != nil {
		return fmt.Errorf("history lookup: %w", err)
	}
	for _, m := range msgs {
		arrow := "<-"
		if m.Direction == domain.RelayDirOut {
			arrow = "->"
		}
		line := m.Text
		if line == "" {
			line = "[" + m.Kind + "]"
		}
		fmt.Fprintf(&b, "\n%s %s %s", arrow, m.CreatedAt.Format("01-02 15:04"), line)
	}

	if _, err := s.tg.SendMessage(ctx, groupID, b.String()); err != nil {
		return fmt.Errorf("send history: %w", err)
	}
	return nil
}

func (s *Service) buildHeader(ctx context.Context, user *models.User) (string, error) {
	until, err := repo.LatestGrantUntil(ctx, s.db, user.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("grant expiry lookup: %w", err)
	}
	total, err := repo.SumPaidByUser(ctx, s.db, user.ID)
	if err != nil {
		return "", fmt.Errorf("paid total lookup: %w", err)
	}
	return composeHeader(displayName(user), until, total, user.LanguageCode), nil
}

// displayName prefers the full name, then @username, then the bare id.
func displayName(u *models.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("id%d", u.ID)
}
