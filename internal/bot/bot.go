package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	
	"wb-margin-bot/internal/config"
	"wb-margin-bot/internal/dialog"
	"wb-margin-bot/internal/session"
	"wb-margin-bot/pkg/metrics"
)

const (
	updateWorkers  = 64
	shardQueueSize = 16
	recordTimeout  = 10 * time.Second
	historyLimit   = 5
)

type Deps struct {
	Sessions   session.Store
	Quota      QuotaService
	Categories CategoryService
	History    HistoryRepository
	Limiter    RateLimiter
}

type Bot struct {
	api        Sender
	logger     *zap.Logger
	sessions   session.Store
	locks      *session.KeyedMutex
	machine    dialog.Machine
	quota      QuotaService
	categories CategoryService
	history    HistoryRepository
	limiter    RateLimiter
	cfg        *config.Config
	exportDir  string
	workers    int
	now        func() time.Time

	// background tracks fire-and-forget calculation writes.
	background sync.WaitGroup
	// pending holds a channel per user that is closed once the user's last write lands.
	pendingMu sync.Mutex
	pending   map[int64]chan struct{}

	commands map[string]func(context.Context, *tgbotapi.Message)
	handlers map[dialog.Step]func(context.Context, *tgbotapi.Message, dialog.State)
}

// NewAPI authorizes the token against Telegram.
func NewAPI(token string, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Info("Bot authorized",
		zap.String("username", botAPI.Self.UserName),
		zap.Int64("id", botAPI.Self.ID))

	return botAPI, nil
}

func New(api Sender, deps Deps, cfg *config.Config, logger *zap.Logger) *Bot {
	b := &Bot{
		api:        api,
		logger:     logger,
		sessions:   deps.Sessions,
		locks:      session.NewKeyedMutex(),
		machine:    dialog.NewMachine(cfg.Bot.AskReturns),
		quota:      deps.Quota,
		categories: deps.Categories,
		history:    deps.History,
		limiter:    deps.Limiter,
		cfg:        cfg,
		exportDir:  "reports",
		workers:    updateWorkers,
		now:        time.Now,
		pending:    make(map[int64]chan struct{}),
	}

	b.registerHandlers()
	return b
}

func (b *Bot) registerHandlers() {
	b.commands = map[string]func(context.Context, *tgbotapi.Message){
		"start":     b.HandleStart,
		"calculate": b.HandleCalculate,
		"cancel":    b.HandleCancel,
		"status":    b.HandleStatus,
		"subscribe": b.HandleSubscribe,
		"help":      b.HandleHelp,
		"history":   b.HandleHistory,
		"export":    b.HandleExport,
		"stats":     b.handleAdminStats,
	}

	b.handlers = map[dialog.Step]func(context.Context, *tgbotapi.Message, dialog.State){
		dialog.StepProductName:    b.handleProductName,
		dialog.StepCategorySelect: b.handleCategoryText,
	}
	for _, step := range []dialog.Step{
		dialog.StepCostPrice,
		dialog.StepSellingPrice,
		dialog.StepCommission,
		dialog.StepLogistics,
		dialog.StepStorage,
		dialog.StepReturnPercent,
		dialog.StepReturnCost,
	} {
		b.handlers[step] = b.handleFieldInput
	}
}

// Run handles updates until ctx is cancelled or the channel closes. Updates are routed to a
// fixed set of workers by user id, so one user's messages are handled one at a time in arrival
// order while different users are served concurrently.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	b.logger.Info("Starting bot", zap.Int("workers", b.workers))

	var wg sync.WaitGroup
	shards := make([]chan tgbotapi.Update, b.workers)
	for i := range shards {
		queue := make(chan tgbotapi.Update, shardQueueSize)
		shards[i] = queue
		wg.Go(func() {
			for update := range queue {
				b.HandleUpdate(ctx, update)
			}
		})
	}

	defer func() {
		for _, queue := range shards {
			close(queue)
		}
		wg.Wait()
		b.background.Wait()
		b.logger.Info("Bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Shutting down bot")
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			userID, _, ok := updateSender(update)
			if !ok {
				continue
			}

			select {
			case shards[shardOf(userID, len(shards))] <- update:
			case <-ctx.Done():
				b.logger.Info("Shutting down bot")
				return nil
			}
		}
	}
}

func shardOf(userID int64, n int) int {
	shard := userID % int64(n)
	if shard < 0 {
		shard = -shard
	}
	return int(shard)
}

// updateSender returns the user behind a message or callback update.
func updateSender(update tgbotapi.Update) (int64, string, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, "message", true
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.From.ID, "callback", true
	default:
		return 0, "", false
	}
}

// HandleUpdate processes one update under the per-user lock.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	userID, kind, ok := updateSender(update)
	if !ok {
		return
	}
	metrics.BotUpdates.WithLabelValues(kind).Inc()

	unlock := b.locks.Lock(userID)
	defer unlock()

	if !b.allow(ctx, userID) {
		metrics.RateLimited.Inc()
		if update.CallbackQuery != nil {
			b.answerCallback(update.CallbackQuery.ID, "")
			b.sendMessage(tgbotapi.NewMessage(update.CallbackQuery.Message.Chat.ID, rateLimitedText))
			return
		}
		b.sendMessage(tgbotapi.NewMessage(update.Message.Chat.ID, rateLimitedText))
		return
	}

	if update.Message != nil {
		b.processMessage(ctx, update.Message)
		return
	}
	b.processCallback(ctx, update.CallbackQuery)
}

// Wait blocks until pending calculation writes finish.
func (b *Bot) Wait() {
	b.background.Wait()
}

func (b *Bot) allow(ctx context.Context, userID int64) bool {
	allowed, err := b.limiter.Allow(ctx, userID, "update")
	if err != nil {
		// the limiter store being down must not take the bot with it
		b.logger.Warn("Rate limiter unavailable, update allowed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return true
	}
	return allowed
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	b.logger.Debug("Processing message",
		zap.Int64("chat_id", chatID),
		zap.String("text", msg.Text))

	if err := b.quota.EnsureUser(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName); err != nil {
		b.logger.Error("Failed to save user",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err))
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, msg.Command())
		return
	}

	if cmd, ok := menuButtons[msg.Text]; ok {
		b.handleCommand(ctx, msg, cmd)
		return
	}

	state, err := session.LoadOrIdle(ctx, b.sessions, msg.From.ID)
	if err != nil {
		b.logger.Error("Failed to get user state",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		b.sendError(chatID, "Ошибка при обработке запроса")
		return
	}

	if handler, exists := b.handlers[state.Step]; exists {
		handler(ctx, msg, state)
	} else {
		b.HandleDefault(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, cmd string) {
	if handler, ok := b.commands[cmd]; ok {
		handler(ctx, msg)
		return
	}
	b.HandleUnknownCommand(ctx, msg)
}

func (b *Bot) processCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	userID := callback.From.ID
	data := callback.Data

	b.logger.Debug("Processing callback",
		zap.Int64("chat_id", chatID),
		zap.String("data", data))

	b.answerCallback(callback.ID, "")

	switch {
	case data == callbackCancel:
		b.cancel(ctx, chatID, userID)
	case data == callbackNewCalculation:
		b.startCalculation(ctx, chatID, userID)
	case data == callbackSubscribe:
		b.showSubscription(chatID)
	case data == callbackActivate:
		b.activateSubscription(ctx, chatID, callback.From)
	case data == callbackBackToMenu:
		b.showMainMenu(chatID, "🏠 Главное меню")
	case strings.HasPrefix(data, callbackCategoryPrefix):
		b.handleCategoryCallback(ctx, chatID, userID, strings.TrimPrefix(data, callbackCategoryPrefix))
	default:
		b.logger.Warn("Unknown callback", zap.String("data", data))
	}
}

func (b *Bot) loadState(ctx context.Context, chatID, userID int64) (dialog.State, bool) {
	st, err := session.LoadOrIdle(ctx, b.sessions, userID)
	if err != nil {
		b.logger.Error("Failed to get user state",
			zap.Int64("user_id", userID),
			zap.Error(err))
		b.sendError(chatID, "Ошибка при обработке запроса")
		return dialog.State{}, false
	}
	return st, true
}

func (b *Bot) saveState(ctx context.Context, chatID, userID int64, st dialog.State) bool {
	if err := b.sessions.Save(ctx, userID, st); err != nil {
		b.logger.Error("Failed to save user state",
			zap.Int64("user_id", userID),
			zap.String("step", string(st.Step)),
			zap.Error(err))
		b.sendError(chatID, "Не удалось сохранить прогресс, попробуйте еще раз")
		return false
	}
	return true
}

func (b *Bot) clearState(ctx context.Context, userID int64) {
	if err := b.sessions.Clear(ctx, userID); err != nil && !errors.Is(err, session.ErrNotFound) {
		b.logger.Error("Failed to clear state",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}

func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Error(err))
	}
}

func (b *Bot) sendHTML(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	b.sendMessage(msg)
}

func (b *Bot) sendError(chatID int64, text string) {
	b.sendMessage(tgbotapi.NewMessage(chatID, "❌ "+text))
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}
