package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/juicyfox/juicybot/internal/domain"
)

// ClassifyMessage maps an inbound message onto a posting kind and extracts
// the Telegram file reference for media kinds.
func ClassifyMessage(msg *models.Message) (kind, fileRef string) {
	switch {
	case len(msg.Photo) > 0:
		return domain.PostKindPhoto, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		return domain.PostKindVideo, msg.Video.FileID
	// Animation before document: Telegram sets both for GIFs.
	case msg.Animation != nil:
		return domain.PostKindAnimation, msg.Animation.FileID
	case msg.Document != nil:
		return domain.PostKindDocument, msg.Document.FileID
	case msg.Voice != nil:
		return domain.PostKindVoice, msg.Voice.FileID
	case msg.Audio != nil:
		return domain.PostKindAudio, msg.Audio.FileID
	case msg.Sticker != nil:
		return domain.PostKindSticker, msg.Sticker.FileID
	case msg.VideoNote != nil:
		return domain.PostKindVideoNote, msg.VideoNote.FileID
	default:
		return domain.PostKindText, ""
	}
}
