package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

type TelegramSender interface {
	SendText(ctx context.Context, chatID int64, text string) (string, error)
	SendReviewItem(ctx context.Context, chatID int64, text string, itemID int64) error
}

// TelegramSink posts alerts to the admin chat. Review-needed alerts carry
// inline approve and reject buttons.
type TelegramSink struct {
	bot    TelegramSender
	chatID int64
}

func NewTelegramSink(bot TelegramSender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, a model.Alert) error {
	if s.bot == nil || s.chatID == 0 {
		return fmt.Errorf("telegram alert sink is not configured")
	}
	text := FormatText(a)
	if a.Kind == enums.AlertReviewNeeded {
		if id, err := strconv.ParseInt(a.Attributes["review_item_id"], 10, 64); err == nil && id > 0 {
			return s.bot.SendReviewItem(ctx, s.chatID, text, id)
		}
	}
	_, err := s.bot.SendText(ctx, s.chatID, text)
	return err
}

type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// KafkaSink publishes alerts as JSON keyed by sender so one sender's events
// stay ordered on a partition.
type KafkaSink struct {
	publisher Publisher
}

func NewKafkaSink(publisher Publisher) *KafkaSink {
	return &KafkaSink{publisher: publisher}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, a model.Alert) error {
	if s.publisher == nil {
		return fmt.Errorf("kafka publisher is nil")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	key := string(a.Kind)
	if a.SenderID > 0 {
		key = strconv.FormatInt(a.SenderID, 10)
	}
	return s.publisher.Publish(ctx, key, payload)
}

// LogSink writes alerts to the process log. It is used when no external
// channel is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, a model.Alert) error {
	s.logger.Info("alert",
		zap.String("kind", string(a.Kind)),
		zap.String("severity", string(a.Severity)),
		zap.Int64("sender_id", a.SenderID),
		zap.String("message_id", a.MessageID),
		zap.String("summary", a.Summary),
	)
	return nil
}

func FormatText(a model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n%s", strings.ToUpper(string(a.Severity)), a.Kind, a.Summary)
	if a.MessageID != "" {
		fmt.Fprintf(&b, "\nmessage: %s", a.MessageID)
	}

	keys := make([]string, 0, len(a.Attributes))
	for k := range a.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, a.Attributes[k])
	}
	return b.String()
}
