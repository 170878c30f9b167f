package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	ReviewCallbackPrefix = "review"
	ReviewActionApprove  = "approve"
	ReviewActionReject   = "reject"
)

type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api api
}

type CommandUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Command  string
	Args     string
}

type TextUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

type CallbackUpdate struct {
	CallbackID string
	ChatID     int64
	UserID     int64
	Username   string
	Data       string
}

type Handlers struct {
	OnCommand  func(context.Context, CommandUpdate) error
	OnText     func(context.Context, TextUpdate) error
	OnCallback func(context.Context, CallbackUpdate) error
}

func NewBot(token string) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	botAPI, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: botAPI}, nil
}

func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := dispatchUpdate(ctx, update, handlers); err != nil {
				return err
			}
		}
	}
}

func dispatchUpdate(ctx context.Context, update tgbotapi.Update, handlers Handlers) error {
	if update.Message != nil && update.Message.From != nil {
		if update.Message.IsCommand() {
			if handlers.OnCommand == nil {
				return nil
			}
			return handlers.OnCommand(ctx, CommandUpdate{
				ChatID:   update.Message.Chat.ID,
				UserID:   update.Message.From.ID,
				Username: update.Message.From.UserName,
				Command:  update.Message.Command(),
				Args:     update.Message.CommandArguments(),
			})
		}

		text := strings.TrimSpace(update.Message.Text)
		if text != "" && handlers.OnText != nil {
			return handlers.OnText(ctx, TextUpdate{
				ChatID:   update.Message.Chat.ID,
				UserID:   update.Message.From.ID,
				Username: update.Message.From.UserName,
				Text:     text,
			})
		}
	}

	if update.CallbackQuery != nil && update.CallbackQuery.From != nil && handlers.OnCallback != nil {
		chatID := int64(0)
		if update.CallbackQuery.Message != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		return handlers.OnCallback(ctx, CallbackUpdate{
			CallbackID: update.CallbackQuery.ID,
			ChatID:     chatID,
			UserID:     update.CallbackQuery.From.ID,
			Username:   update.CallbackQuery.From.UserName,
			Data:       update.CallbackQuery.Data,
		})
	}

	return nil
}

// SendText delivers text to a chat and returns the telegram message id.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) (string, error) {
	if b == nil || b.api == nil {
		return "", fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return "", fmt.Errorf("chat id is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return "", fmt.Errorf("send telegram message: %w", err)
	}

	return strconv.Itoa(sent.MessageID), nil
}

func (b *Bot) SendReviewItem(ctx context.Context, chatID int64, text string, itemID int64) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", ReviewCallbackData(ReviewActionApprove, itemID)),
			tgbotapi.NewInlineKeyboardButtonData("Reject", ReviewCallbackData(ReviewActionReject, itemID)),
		),
	)

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send review item message: %w", err)
	}
	return nil
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if strings.TrimSpace(callbackID) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

func ReviewCallbackData(action string, itemID int64) string {
	return ReviewCallbackPrefix + ":" + action + ":" + strconv.FormatInt(itemID, 10)
}

// ParseReviewCallback splits "review:<action>:<id>" callback payloads.
func ParseReviewCallback(data string) (string, int64, bool) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 || parts[0] != ReviewCallbackPrefix {
		return "", 0, false
	}
	if parts[1] != ReviewActionApprove && parts[1] != ReviewActionReject {
		return "", 0, false
	}
	itemID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || itemID <= 0 {
		return "", 0, false
	}
	return parts[1], itemID, true
}
