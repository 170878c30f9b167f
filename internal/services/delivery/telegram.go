package delivery

import (
	"context"
	"fmt"
	"strconv"

	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
)

type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) (string, error)
}

type TelegramProvider struct {
	bot TextSender
}

func NewTelegramProvider(bot TextSender) *TelegramProvider {
	return &TelegramProvider{bot: bot}
}

func (p *TelegramProvider) Name() string { return "telegram" }

func (p *TelegramProvider) Address(contact pgrepo.ContactRecord) (string, bool) {
	if contact.TelegramChatID == 0 {
		return "", false
	}
	return strconv.FormatInt(contact.TelegramChatID, 10), true
}

func (p *TelegramProvider) Send(ctx context.Context, address, text string) (string, error) {
	if p.bot == nil {
		return "", fmt.Errorf("telegram bot is nil")
	}
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse chat id: %w", err)
	}
	return p.bot.SendText(ctx, chatID, text)
}
