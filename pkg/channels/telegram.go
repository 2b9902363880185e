package channels

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/HKUDS/meshgate-go/pkg/config"
)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramMirror posts channel broadcasts to a set of Telegram chats.
type TelegramMirror struct {
	bot     botSender
	chatIDs []int64
}

// NewTelegramMirror authorizes the bot token. It returns nil, nil when the
// mirror is disabled.
func NewTelegramMirror(cfg *config.TelegramConfig) (*TelegramMirror, error) {
	if !cfg.Enabled || cfg.Token == "" {
		return nil, nil
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.New("telegram mirror has no chat ids")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return &TelegramMirror{bot: bot, chatIDs: cfg.ChatIDs}, nil
}

func (t *TelegramMirror) Name() string {
	return "telegram"
}

func (t *TelegramMirror) Mirror(ctx context.Context, channel int, text string) error {
	if text == "" {
		return nil
	}
	content := fmt.Sprintf("[ch %d] %s", channel, text)

	var errs []error
	for _, id := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(id, content)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
