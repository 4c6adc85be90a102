// Package telegram wraps the Bot API client used by the core. It adds send
// pacing, inline retry for interactive sends, and a narrow method surface so
// services can declare small consumer interfaces and tests can fake them.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/domain"
)

// inlineAttempts bounds retries for interactive sends. Posting jobs retry
// through the durable queue instead.
const inlineAttempts = 3

// Client is the outbound Telegram adapter. Safe for concurrent use.
type Client struct {
	bot     *tgbot.Bot
	limiter *rate.Limiter
	log     zerolog.Logger
	botID   int64
}

// NewClient builds the Bot API client. No network call happens here; Probe
// performs the startup getMe round trip.
func NewClient(cfg config.Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	b, err := tgbot.New(cfg.TelegramToken, tgbot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	return &Client{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.TelegramRPS), int(cfg.TelegramRPS)+1),
		log:     log,
		botID:   cfg.BotID,
	}, nil
}

// Probe verifies the token against the live API and returns the bot identity.
func (c *Client) Probe(ctx context.Context) (int64, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return 0, fmt.Errorf("getMe: %w", err)
	}
	return me.ID, nil
}

// SetWebhook registers url as the update webhook.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.SetWebhook(ctx, &tgbot.SetWebhookParams{URL: url})
	return err
}

// SendMessage sends a plain text message and returns its message id.
// Retries up to inlineAttempts times on transient failures.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	return c.SendMessageMarkup(ctx, chatID, text, nil)
}

// SendMessageMarkup sends a text message with an optional inline keyboard.
func (c *Client) SendMessageMarkup(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) (int, error) {
	var msgID int
	err := c.retry(ctx, func() error {
		msg, err := c.bot.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:      chatID,
			Text:        text,
			ReplyMarkup: markup,
		})
		if err != nil {
			return err
		}
		msgID = msg.ID
		return nil
	})
	return msgID, err
}

// CopyMessage copies a message between chats without a forward header and
// returns the new message id.
func (c *Client) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	var msgID int
	err := c.retry(ctx, func() error {
		res, err := c.bot.CopyMessage(ctx, &tgbot.CopyMessageParams{
			ChatID:     toChatID,
			FromChatID: fromChatID,
			MessageID:  messageID,
		})
		if err != nil {
			return err
		}
		msgID = res.ID
		return nil
	})
	return msgID, err
}

// SendPost delivers a posting job payload. Text jobs use text; file kinds
// carry a Telegram file_id in fileRef with text as the caption. A single
// attempt is made: the posting queue owns retries.
func (c *Client) SendPost(ctx context.Context, chatID int64, kind, text, fileRef string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	file := &models.InputFileString{Data: fileRef}
	var (
		msg *models.Message
		err error
	)
	switch kind {
	case domain.PostKindText:
		msg, err = c.bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text})
	case domain.PostKindPhoto:
		msg, err = c.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{ChatID: chatID, Photo: file, Caption: text})
	case domain.PostKindVideo:
		msg, err = c.bot.SendVideo(ctx, &tgbot.SendVideoParams{ChatID: chatID, Video: file, Caption: text})
	case domain.PostKindDocument:
		msg, err = c.bot.SendDocument(ctx, &tgbot.SendDocumentParams{ChatID: chatID, Document: file, Caption: text})
	case domain.PostKindAnimation:
		msg, err = c.bot.SendAnimation(ctx, &tgbot.SendAnimationParams{ChatID: chatID, Animation: file, Caption: text})
	case domain.PostKindVoice:
		msg, err = c.bot.SendVoice(ctx, &tgbot.SendVoiceParams{ChatID: chatID, Voice: file, Caption: text})
	case domain.PostKindAudio:
		msg, err = c.bot.SendAudio(ctx, &tgbot.SendAudioParams{ChatID: chatID, Audio: file, Caption: text})
	case domain.PostKindSticker:
		msg, err = c.bot.SendSticker(ctx, &tgbot.SendStickerParams{ChatID: chatID, Sticker: file})
	case domain.PostKindVideoNote:
		msg, err = c.bot.SendVideoNote(ctx, &tgbot.SendVideoNoteParams{ChatID: chatID, VideoNote: file})
	default:
		return 0, fmt.Errorf("unsupported post kind %q", kind)
	}
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// CreateInviteLink requests a single-use invite link expiring at expire.
func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, expire time.Time, memberLimit int) (string, error) {
	var link string
	err := c.retry(ctx, func() error {
		res, err := c.bot.CreateChatInviteLink(ctx, &tgbot.CreateChatInviteLinkParams{
			ChatID:      chatID,
			ExpireDate:  int(expire.Unix()),
			MemberLimit: memberLimit,
		})
		if err != nil {
			return err
		}
		link = res.InviteLink
		return nil
	})
	return link, err
}

// DeleteMessage removes a message the bot posted.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.DeleteMessage(ctx, &tgbot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	return err
}

// AnswerCallback acknowledges an inline-keyboard press, optionally with an
// alert popup.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	return err
}

// retry runs op with pacing and capped exponential retry. Context
// cancellation stops the retry loop.
func (c *Client) retry(ctx context.Context, op func() error) error {
	attempt := 0
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), inlineAttempts-1), ctx)
	return backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		if err := op(); err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("telegram send failed")
			return err
		}
		return nil
	}, bo)
}
