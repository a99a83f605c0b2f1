package bot

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wb-margin-bot/internal/category"
	"wb-margin-bot/internal/config"
	"wb-margin-bot/internal/dialog"
	"wb-margin-bot/internal/margin"
	"wb-margin-bot/internal/quota"
	"wb-margin-bot/internal/ratelimit"
	"wb-margin-bot/internal/session"
	"wb-margin-bot/internal/storage"
)

const (
	testUser  int64 = 1001
	testAdmin int64 = 999
)

type sentMessage struct {
	chatID int64
	text   string
	markup any
}

type fakeSender struct {
	mu        sync.Mutex
	messages  []sentMessage
	documents []tgbotapi.DocumentConfig
	callbacks int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.messages = append(f.messages, sentMessage{chatID: m.ChatID, text: m.Text, markup: m.ReplyMarkup})
	case tgbotapi.DocumentConfig:
		f.documents = append(f.documents, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callbacks++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.messages) == 0 {
		return sentMessage{}
	}
	return f.messages[len(f.messages)-1]
}

// sentTo returns every text sent to chatID, joined.
func (f *fakeSender) sentTo(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var parts []string
	for _, m := range f.messages {
		if m.chatID == chatID {
			parts = append(parts, m.text)
		}
	}
	return strings.Join(parts, "\n---\n")
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages = nil
}

type fakeCategories struct {
	results     map[string][]category.Category
	commissions map[int]float64
	err         error
}

func (f *fakeCategories) SearchByName(_ context.Context, name string) ([]category.Category, error) {
	if len([]rune(strings.TrimSpace(name))) < category.MinQueryLength {
		return nil, category.ErrQueryTooShort
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results[strings.ToLower(name)], nil
}

func (f *fakeCategories) Commission(_ context.Context, id int) (category.Commission, error) {
	if pct, ok := f.commissions[id]; ok {
		return category.Commission{CategoryID: id, Percent: pct}, nil
	}
	return category.Commission{CategoryID: id, Percent: 15, Fallback: true}, nil
}

// slowQuota delays calculation writes so they land after the reply.
type slowQuota struct {
	QuotaService
	delay time.Duration
}

func (q *slowQuota) RecordCalculation(ctx context.Context, userID int64, r margin.Result) error {
	time.Sleep(q.delay)
	return q.QuotaService.RecordCalculation(ctx, userID, r)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, int64, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

type env struct {
	bot      *Bot
	sender   *fakeSender
	store    *storage.Storage
	sessions *session.MemoryStore
	cats     *fakeCategories
}

func testConfig() *config.Config {
	return &config.Config{
		Quota: config.Quota{
			FreeCalculationsLimit: 5,
			SubscriptionPrice:     149,
			SubscriptionDays:      30,
			StorageCostPerDay:     0.16,
			StorageDays:           30,
		},
		Bot: config.Bot{AdminIDs: []int64{testAdmin}},
	}
}

func newEnv(t *testing.T, cfg *config.Config, limiter RateLimiter) *env {
	t.Helper()
	ctx := context.Background()

	store, err := storage.New(ctx, config.Database{Driver: config.DriverSQLite, SQLitePath: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	if limiter == nil {
		limiter = ratelimit.New(ratelimit.NewMemoryCounter(), 0, time.Minute)
	}

	e := &env{
		sender:   &fakeSender{},
		store:    store,
		sessions: session.NewMemoryStore(time.Hour),
		cats: &fakeCategories{
			results: map[string][]category.Category{
				"бутылка": {{ID: 11, Name: "Бутылки", Parent: 1, ParentName: "Дом"}},
				"чехол": {
					{ID: 21, Name: "Чехлы для телефонов", Parent: 2, ParentName: "Электроника"},
					{ID: 22, Name: "Чехлы для одежды", Parent: 1, ParentName: "Дом"},
					{ID: 23, Name: "Чехлы для мебели", Parent: 1, ParentName: "Дом"},
				},
			},
			commissions: map[int]float64{11: 19.5, 22: 17},
		},
	}

	e.bot = New(e.sender, Deps{
		Sessions:   e.sessions,
		Quota:      quota.NewService(store, cfg.Quota.FreeCalculationsLimit),
		Categories: e.cats,
		History:    store,
		Limiter:    limiter,
	}, cfg, zap.NewNop())
	e.bot.exportDir = t.TempDir()

	return e
}

func (e *env) send(userID int64, texts ...string) {
	for _, text := range texts {
		e.bot.HandleUpdate(context.Background(), textUpdate(userID, text))
	}
}

func (e *env) press(userID int64, data string) {
	e.bot.HandleUpdate(context.Background(), callbackUpdate(userID, data))
}

func (e *env) step(t *testing.T, userID int64) dialog.Step {
	t.Helper()

	st, err := session.LoadOrIdle(context.Background(), e.sessions, userID)
	require.NoError(t, err)
	return st.Step
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Анна", UserName: "anna"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		n := strings.IndexByte(text, ' ')
		if n < 0 {
			n = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID, FirstName: "Анна", UserName: "anna"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

func TestBot_CalculateWithoutProduct(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	e.send(testUser, "/start")
	rq.Contains(e.sender.last().text, "5 бесплатных расчетов")

	e.send(testUser, "/calculate")
	rq.Equal(dialog.StepProductName, e.step(t, testUser))

	e.send(testUser, buttonSkip)
	rq.Equal(dialog.StepCostPrice, e.step(t, testUser))
	rq.Contains(e.sender.last().text, "Шаг 1 из 5")

	e.send(testUser, "500", "1500", "15%", "50")
	rq.Contains(e.sender.last().text, "Шаг 5 из 5")

	e.send(testUser, "30")
	e.bot.Wait()

	out := e.sender.sentTo(testUser)
	rq.Contains(out, "Результат расчета маржи")
	rq.Contains(out, "695.00 ₽")
	rq.Contains(out, "Осталось бесплатных расчетов: 4")
	rq.Equal(dialog.StepIdle, e.step(t, testUser))

	calcs, err := e.store.ListCalculations(context.Background(), testUser, 0)
	rq.NoError(err)
	rq.Len(calcs, 1)
	rq.InDelta(695, calcs[0].Profit, 1e-9)
}

func TestBot_ProductAutoSelectsCategory(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	e.send(testUser, "/calculate", "бутылка")
	out := e.sender.sentTo(testUser)
	rq.Contains(out, "Категория: <b>Бутылки</b>")
	rq.Contains(out, "19.50%")
	rq.Contains(e.sender.last().text, "Шаг 1 из 4")

	e.send(testUser, "500", "1500")
	rq.Equal(dialog.StepLogistics, e.step(t, testUser))

	e.send(testUser, "50", buttonSkipStorage)
	e.bot.Wait()

	out = e.sender.sentTo(testUser)
	rq.Contains(out, "🛍 <b>бутылка</b>")
	rq.Contains(out, "Комиссия WB: 19.50%")
	rq.Equal(dialog.StepIdle, e.step(t, testUser))
}

func TestBot_CategoryButtons(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	e.send(testUser, "/calculate", "чехол")
	rq.Equal(dialog.StepCategorySelect, e.step(t, testUser))

	markup, ok := e.sender.last().markup.(tgbotapi.InlineKeyboardMarkup)
	rq.True(ok)
	rq.Len(markup.InlineKeyboard, 3+2)
	rq.Equal("category:21", *markup.InlineKeyboard[0][0].CallbackData)

	e.press(testUser, "category:22")
	rq.Equal(dialog.StepCostPrice, e.step(t, testUser))
	rq.Contains(e.sender.sentTo(testUser), "Категория: <b>Чехлы для одежды</b>")

	st, err := session.LoadOrIdle(context.Background(), e.sessions, testUser)
	rq.NoError(err)
	rq.True(st.Prefilled)
	rq.Equal(22, st.CategoryID)
}

func TestBot_CategorySkipAsksCommission(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	e.send(testUser, "/calculate", "чехол")
	e.press(testUser, "category:skip")

	st, err := session.LoadOrIdle(context.Background(), e.sessions, testUser)
	rq.NoError(err)
	rq.Equal(dialog.StepCostPrice, st.Step)
	rq.False(st.Prefilled)
	rq.Equal("чехол", st.ProductName)
	rq.Contains(e.sender.last().text, "Шаг 1 из 5")
}

func TestBot_ShortProductNameStays(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	e.send(testUser, "/calculate", "я")
	rq.Equal(dialog.StepProductName, e.step(t, testUser))
	rq.True(strings.HasPrefix(e.sender.last().text, "❌ "))
}

func TestBot_InvalidInputReprompts(t *testing.T) {
	testCases := []struct {
		name    string
		prior   []string
		text    string
		step    dialog.Step
		message string
	}{
		{name: "not a number", text: "abc", step: dialog.StepCostPrice, message: "Себестоимость"},
		{name: "zero cost", text: "0", step: dialog.StepCostPrice, message: "больше 0"},
		{name: "commission over 100", prior: []string{"500", "1500"}, text: "150", step: dialog.StepCommission, message: "от 0 до 100"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			e := newEnv(t, testConfig(), nil)

			e.send(testUser, "/calculate", buttonSkip)
			e.send(testUser, tc.prior...)
			e.send(testUser, tc.text)

			last := e.sender.last()
			rq.True(strings.HasPrefix(last.text, "❌ "), last.text)
			rq.Contains(last.text, tc.message)
			rq.Equal(tc.step, e.step(t, testUser))
		})
	}
}

func TestBot_Cancel(t *testing.T) {
	testCases := []struct {
		name   string
		cancel func(e *env)
	}{
		{name: "command", cancel: func(e *env) { e.send(testUser, "/cancel") }},
		{name: "button", cancel: func(e *env) { e.send(testUser, buttonCancel) }},
		{name: "callback", cancel: func(e *env) { e.press(testUser, callbackCancel) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rq := require.New(t)
			e := newEnv(t, testConfig(), nil)

			e.send(testUser, "/calculate", buttonSkip, "500", "1500")
			rq.Equal(dialog.StepCommission, e.step(t, testUser))

			tc.cancel(e)
			rq.Equal(dialog.StepIdle, e.step(t, testUser))
			rq.Contains(e.sender.last().text, "Расчет отменен")

			e.send(testUser, "700")
			rq.True(strings.HasPrefix(e.sender.last().text, "❌ "))
		})
	}
}

func TestBot_QuotaExceeded(t *testing.T) {
	rq := require.New(t)
	cfg := testConfig()
	cfg.Quota.FreeCalculationsLimit = 1
	e := newEnv(t, cfg, nil)

	e.send(testUser, "/calculate", buttonSkip, "500", "1500", "15", "50", "30")
	e.bot.Wait()
	rq.Contains(e.sender.sentTo(testUser), "последний бесплатный расчет")

	e.sender.reset()
	e.send(testUser, "/calculate")
	rq.Contains(e.sender.last().text, "Лимит бесплатных расчетов исчерпан")
	rq.Equal(dialog.StepIdle, e.step(t, testUser))

	e.press(testUser, callbackActivate)
	rq.Contains(e.sender.sentTo(testUser), "Подписка активна до")
	rq.Contains(e.sender.sentTo(testAdmin), "@anna")

	e.send(testUser, "/calculate")
	rq.Equal(dialog.StepProductName, e.step(t, testUser))
	rq.Contains(e.sender.last().text, "Безлимит")
}

func TestBot_QuotaCheckWaitsForPendingWrite(t *testing.T) {
	rq := require.New(t)
	cfg := testConfig()
	cfg.Quota.FreeCalculationsLimit = 1
	e := newEnv(t, cfg, nil)
	e.bot.quota = &slowQuota{QuotaService: e.bot.quota, delay: 100 * time.Millisecond}

	e.send(testUser, "/calculate", buttonSkip, "500", "1500", "15", "50", "30")
	rq.Contains(e.sender.sentTo(testUser), "последний бесплатный расчет")

	e.send(testUser, "/calculate")
	rq.Contains(e.sender.last().text, "Лимит бесплатных расчетов исчерпан")
	rq.Equal(dialog.StepIdle, e.step(t, testUser))
}

func TestBot_Status(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	e.send(testUser, "/status")
	rq.Contains(e.sender.last().text, "5 из 5")

	e.press(testUser, callbackActivate)
	e.send(testUser, "/status")
	rq.Contains(e.sender.last().text, "Подписка активна")
}

func TestBot_RateLimited(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), ratelimit.New(ratelimit.NewMemoryCounter(), 2, time.Minute))

	e.send(testUser, "/help", "/help")
	rq.Contains(e.sender.last().text, "Справка")

	e.send(testUser, "/help")
	rq.Equal(rateLimitedText, e.sender.last().text)

	e.send(testUser+1, "/help")
	rq.Contains(e.sender.last().text, "Справка")
}

func TestBot_RateLimiterDownAllows(t *testing.T) {
	e := newEnv(t, testConfig(), failingLimiter{})

	e.send(testUser, "/help")
	require.Contains(t, e.sender.last().text, "Справка")
}

func TestBot_AdminStats(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	e.send(testUser, "/stats")
	rq.Contains(e.sender.last().text, "Неизвестная команда")

	e.send(testUser, "/calculate", buttonSkip, "500", "1500", "15", "50", "30")
	e.bot.Wait()

	e.send(testAdmin, "/stats")
	last := e.sender.last()
	rq.Equal(testAdmin, last.chatID)
	rq.Contains(last.text, "Всего расчетов: 1")
}

func TestBot_HistoryAndExport(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	e.send(testUser, "/history")
	rq.Contains(e.sender.last().text, "История пуста")

	e.send(testUser, "/calculate", buttonSkip, "500", "1500", "15", "50", "30")
	e.bot.Wait()

	e.send(testUser, "/history")
	rq.Contains(e.sender.last().text, "695.00 ₽")

	e.send(testUser, "/export")
	rq.Len(e.sender.documents, 1)

	path := string(e.sender.documents[0].File.(tgbotapi.FilePath))
	_, err := os.Stat(path)
	rq.True(os.IsNotExist(err))
}

func TestBot_NotifySubscriptionExpiring(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	until := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	rq.NoError(e.bot.NotifySubscriptionExpiring(context.Background(), storage.User{ID: testUser, SubscriptionUntil: &until}))
	rq.Contains(e.sender.last().text, "20.05.2026")

	rq.Error(e.bot.NotifySubscriptionExpiring(context.Background(), storage.User{ID: testUser}))
}

func TestBot_RunServesUsersConcurrently(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	updates := make(chan tgbotapi.Update)
	done := make(chan error, 1)
	go func() {
		done <- e.bot.Run(context.Background(), updates)
	}()

	for user := int64(1); user <= 10; user++ {
		updates <- textUpdate(user, "/help")
	}
	close(updates)

	rq.NoError(<-done)
	for user := int64(1); user <= 10; user++ {
		rq.Contains(e.sender.sentTo(user), "Справка")
	}
}

func TestBot_RunKeepsEachUsersOrder(t *testing.T) {
	rq := require.New(t)
	e := newEnv(t, testConfig(), nil)

	const users = 30
	inputs := []string{"/calculate", buttonSkip, "500", "1500", "15", "50", "30"}

	updates := make(chan tgbotapi.Update)
	done := make(chan error, 1)
	go func() {
		done <- e.bot.Run(context.Background(), updates)
	}()

	// each user's sequence is sent back to back, interleaved with everybody else's
	for _, text := range inputs {
		for user := int64(1); user <= users; user++ {
			updates <- textUpdate(user, text)
		}
	}
	close(updates)
	rq.NoError(<-done)

	for user := int64(1); user <= users; user++ {
		out := e.sender.sentTo(user)
		rq.Contains(out, "Себестоимость: <b>500.00 ₽</b>", "user %d", user)
		rq.Contains(out, "695.00 ₽", "user %d", user)
		rq.Equal(dialog.StepIdle, e.step(t, user))

		calcs, err := e.store.ListCalculations(context.Background(), user, 0)
		rq.NoError(err)
		rq.Len(calcs, 1, "user %d", user)
		rq.InDelta(695, calcs[0].Profit, 1e-9)
	}
}
