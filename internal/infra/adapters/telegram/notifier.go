// File: internal/infra/adapters/telegram/notifier.go
package telegram

import (
	"context"
	"errors"
	"sync"

	"studio-sync-engine/internal/domain/model"
	"studio-sync-engine/internal/domain/ports/adapter"
	"studio-sync-engine/internal/infra/i18n"
	"studio-sync-engine/internal/infra/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var _ adapter.Notifier = (*Notifier)(nil)

// Notifier pings users on Telegram when a generation finishes while no UI
// is attached. Chat links are registered per user at session issue time.
type Notifier struct {
	bot *tgbotapi.BotAPI
	tr  *i18n.Translator
	log zerolog.Logger

	mu    sync.RWMutex
	chats map[string]int64
}

func NewNotifier(token string, tr *i18n.Translator, logger *zerolog.Logger) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if tr == nil {
		return nil, errors.New("translator required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Notifier{
		bot:   bot,
		tr:    tr,
		log:   logger.With().Str("component", "telegram_notifier").Logger(),
		chats: make(map[string]int64),
	}, nil
}

func (n *Notifier) Register(userID string, chatID int64) {
	if chatID == 0 {
		return
	}
	n.mu.Lock()
	n.chats[userID] = chatID
	n.mu.Unlock()
}

func (n *Notifier) Unregister(userID string) {
	n.mu.Lock()
	delete(n.chats, userID)
	n.mu.Unlock()
}

func (n *Notifier) Notify(ctx context.Context, userID string, notice model.Notice) error {
	n.mu.RLock()
	chatID, ok := n.chats[userID]
	n.mu.RUnlock()
	if !ok {
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, renderNotice(n.tr, notice))
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Warn().Err(err).Str("user_id", userID).Str("code", string(notice.Code)).Msg("telegram notify failed")
		return err
	}
	metrics.IncNoticeSent(string(notice.Code), "telegram")
	return nil
}

func renderNotice(tr *i18n.Translator, n model.Notice) string {
	switch n.Code {
	case model.NoticeStoryReady:
		return tr.T("notice_story_ready")
	case model.NoticeNarrationReady:
		return tr.T("notice_narration_ready")
	case model.NoticeFailed:
		if n.Message != "" {
			return tr.T("notice_failed_reason", n.Message)
		}
		return tr.T("notice_failed")
	case model.NoticeTimedOut:
		return tr.T("notice_timed_out")
	case model.NoticeIdle:
		return tr.T("notice_idle")
	default:
		return n.Message
	}
}
