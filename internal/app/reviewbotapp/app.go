package reviewbotapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/app/gatewayapp"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/config"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	tginfra "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/infra/telegram"
	gatewaysvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/gateway"
	reviewsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/review"
)

const (
	queueEmptyText   = "Review queue is empty."
	notReviewerText  = "You are not allowed to review messages."
	askNoteText      = "Send a note for the rejection, or - to skip."
	resolveFailed    = "Could not record the decision, try again."
	skipNoteSentinel = "-"
)

type reviewQueue interface {
	Next(ctx context.Context) (model.ReviewItem, int64, error)
}

type resolver interface {
	Resolve(ctx context.Context, p gatewaysvc.ResolveParams) (model.ReviewResolution, error)
}

type botClient interface {
	Listen(ctx context.Context, handlers tginfra.Handlers) error
	SendText(ctx context.Context, chatID int64, text string) (string, error)
	SendReviewItem(ctx context.Context, chatID int64, text string, itemID int64) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type rejectState struct {
	ItemID     int64
	ReviewerID int64
}

type App struct {
	logger    *zap.Logger
	services  *gatewayapp.Services
	bot       botClient
	queue     reviewQueue
	resolver  resolver
	reviewers map[int64]struct{}

	rejectMu     sync.Mutex
	rejectByChat map[int64]rejectState
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	services, err := gatewayapp.NewServices(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init review bot services: %w", err)
	}
	if services.Bot == nil {
		_ = services.Close()
		return nil, fmt.Errorf("telegram token is required for the review bot")
	}

	app := newApp(services.Bot, services.Review, services.Gateway, cfg.Telegram.ReviewerTGID, logger)
	app.services = services
	return app, nil
}

func newApp(bot botClient, queue reviewQueue, resolver resolver, reviewerIDs []int64, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	reviewers := make(map[int64]struct{}, len(reviewerIDs))
	for _, id := range reviewerIDs {
		reviewers[id] = struct{}{}
	}
	return &App{
		logger:       logger,
		bot:          bot,
		queue:        queue,
		resolver:     resolver,
		reviewers:    reviewers,
		rejectByChat: make(map[int64]rejectState),
	}
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("review bot started")

	errCh := make(chan error, 2)
	if a.services != nil {
		go func() {
			errCh <- a.services.Alerts.Run(ctx)
		}()
	}
	go func() {
		errCh <- a.bot.Listen(ctx, tginfra.Handlers{
			OnCommand:  a.handleCommand,
			OnText:     a.handleText,
			OnCallback: a.handleCallback,
		})
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("review bot stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "queue":
		if !a.isReviewer(update.UserID) {
			_, err := a.bot.SendText(ctx, update.ChatID, notReviewerText)
			return err
		}
		return a.sendNextQueueItem(ctx, update.ChatID)
	default:
		return nil
	}
}

func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	action, itemID, ok := tginfra.ParseReviewCallback(update.Data)
	if !ok {
		return a.bot.AnswerCallback(ctx, update.CallbackID, "Unknown action")
	}
	if !a.isReviewer(update.UserID) {
		return a.bot.AnswerCallback(ctx, update.CallbackID, notReviewerText)
	}

	switch action {
	case tginfra.ReviewActionApprove:
		res, err := a.resolve(ctx, itemID, enums.ReviewDecisionApprove, update.UserID, "")
		if err != nil {
			return a.bot.AnswerCallback(ctx, update.CallbackID, resolveFailed)
		}
		if err := a.bot.AnswerCallback(ctx, update.CallbackID, "Approved"); err != nil {
			return err
		}
		_, err = a.bot.SendText(ctx, update.ChatID, resolutionText(res))
		return err
	case tginfra.ReviewActionReject:
		a.rejectMu.Lock()
		a.rejectByChat[update.ChatID] = rejectState{ItemID: itemID, ReviewerID: update.UserID}
		a.rejectMu.Unlock()
		if err := a.bot.AnswerCallback(ctx, update.CallbackID, "Send note"); err != nil {
			return err
		}
		_, err := a.bot.SendText(ctx, update.ChatID, askNoteText)
		return err
	default:
		return a.bot.AnswerCallback(ctx, update.CallbackID, "Unknown action")
	}
}

func (a *App) handleText(ctx context.Context, update tginfra.TextUpdate) error {
	a.rejectMu.Lock()
	state, ok := a.rejectByChat[update.ChatID]
	a.rejectMu.Unlock()
	if !ok || state.ReviewerID != update.UserID {
		return nil
	}

	note := strings.TrimSpace(update.Text)
	if note == skipNoteSentinel {
		note = ""
	}

	res, err := a.resolve(ctx, state.ItemID, enums.ReviewDecisionReject, state.ReviewerID, note)
	if err != nil {
		_, sendErr := a.bot.SendText(ctx, update.ChatID, resolveFailed)
		return sendErr
	}

	a.rejectMu.Lock()
	delete(a.rejectByChat, update.ChatID)
	a.rejectMu.Unlock()

	_, err = a.bot.SendText(ctx, update.ChatID, resolutionText(res))
	return err
}

func (a *App) resolve(ctx context.Context, itemID int64, decision enums.ReviewDecision, reviewerTGID int64, note string) (model.ReviewResolution, error) {
	res, err := a.resolver.Resolve(ctx, gatewaysvc.ResolveParams{
		ItemID:   itemID,
		Decision: decision,
		AdminID:  "tg:" + strconv.FormatInt(reviewerTGID, 10),
		Note:     note,
	})
	if err != nil {
		a.logger.Warn("review resolve failed",
			zap.Int64("review_item_id", itemID),
			zap.String("decision", string(decision)),
			zap.Error(err),
		)
	}
	return res, err
}

func (a *App) sendNextQueueItem(ctx context.Context, chatID int64) error {
	item, pending, err := a.queue.Next(ctx)
	if err != nil {
		if errors.Is(err, reviewsvc.ErrQueueEmpty) {
			_, err = a.bot.SendText(ctx, chatID, queueEmptyText)
			return err
		}
		return err
	}
	return a.bot.SendReviewItem(ctx, chatID, formatQueueMessage(item, pending), item.ID)
}

func (a *App) isReviewer(tgID int64) bool {
	_, ok := a.reviewers[tgID]
	return ok
}

func formatQueueMessage(item model.ReviewItem, pending int64) string {
	lines := []string{
		fmt.Sprintf("Review item #%d", item.ID),
		fmt.Sprintf("Message: %s", item.MessageID),
		fmt.Sprintf("Sender ID: %d", item.SenderID),
		fmt.Sprintf("Source: %s", item.Source),
		fmt.Sprintf("Reason: %s", defaultString(item.Reason, "-")),
		fmt.Sprintf("Queue size: %d (%s)", pending, reviewsvc.ETABucketFromQueueSize(pending)),
		"",
		reviewsvc.Preview(item.Body),
	}
	return strings.Join(lines, "\n")
}

func resolutionText(res model.ReviewResolution) string {
	decision := "-"
	if res.Item.Decision != nil {
		decision = string(*res.Item.Decision)
	}
	if res.AlreadyResolved {
		return fmt.Sprintf("Item #%d was already resolved (%s). Message is %s.", res.Item.ID, decision, res.MessageStatus)
	}
	return fmt.Sprintf("Item #%d: %s. Message is %s.", res.Item.ID, decision, res.MessageStatus)
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (a *App) Close() {
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			a.logger.Warn("close review bot services", zap.Error(err))
		}
	}
}
