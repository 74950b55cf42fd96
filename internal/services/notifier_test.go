package services

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/aristath/twstock/internal/domain"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func newTestNotifier(bot telegramSender, chats ...int64) *Notifier {
	return &Notifier{
		bot:     bot,
		chats:   chats,
		queue:   make(chan string, notifyQueueSize),
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     zerolog.Nop(),
	}
}

func TestNotifierDeliversToEveryChat(t *testing.T) {
	bot := &fakeBot{}
	n := newTestNotifier(bot, 11, 22)

	n.deliver(context.Background(), "hello")
	require.Len(t, bot.sent, 2)
	assert.Equal(t, int64(11), bot.sent[0].ChatID)
	assert.Equal(t, int64(22), bot.sent[1].ChatID)
	assert.Equal(t, "hello", bot.sent[0].Text)
}

func TestNotifierDisabledSendIsNoop(t *testing.T) {
	n, err := NewNotifier("", map[int64]string{1: "a"}, zerolog.Nop())
	require.NoError(t, err)
	// Must not block or panic without a bot.
	n.Send("dropped")
}

func TestNotifierQueueFullDrops(t *testing.T) {
	bot := &fakeBot{}
	n := newTestNotifier(bot, 1)
	n.queue = make(chan string, 1)

	n.Send("first")
	n.Send("second")
	assert.Len(t, n.queue, 1)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "head", firstLine("head\ntail"))
	assert.Equal(t, "single", firstLine("single"))
}

func TestSymbolLink(t *testing.T) {
	assert.Equal(t,
		"2330 台積電 (https://tw.stock.yahoo.com/quote/2330)",
		symbolLink("2330", "台積電"))
}

func TestFormatMoneyDelta(t *testing.T) {
	today := []domain.DailyMoneyHistory{
		{MemberID: 1, Sum: 110000, Date: time.Now()},
		{MemberID: 2, Sum: 50000, Date: time.Now()},
	}
	previous := []domain.DailyMoneyHistory{
		{MemberID: 1, Sum: 100000},
		{MemberID: 2, Sum: 50000},
	}
	names := map[int64]string{1: "甲", 2: "乙"}

	got := formatMoneyDelta(today, previous, names)
	assert.Equal(t,
		"甲: 110000 (+10000, +10.00%)\n乙: 50000 (+0, +0.00%)\n合計: 160000 (+10000, +6.67%)",
		got)
}

func TestFormatMoneyDeltaNoPrior(t *testing.T) {
	today := []domain.DailyMoneyHistory{{MemberID: 7, Sum: 1234}}
	got := formatMoneyDelta(today, nil, nil)
	assert.Equal(t, "member 7: 1234\n合計: 1234", got)
}
