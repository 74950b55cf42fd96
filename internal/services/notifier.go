// Package services holds the scheduled job bodies: the closing pipeline,
// the dividend flows, the backfills, and the notification / ops jobs.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/modules/dividends"
	"github.com/aristath/twstock/internal/modules/moneyhistory"
	"github.com/aristath/twstock/internal/modules/publicoffering"
)

const notifyQueueSize = 256

// telegramSender is the thin surface of the bot the notifier needs.
// Narrowed for tests.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers plain-text messages to the allowed chat users.
// Delivery is best-effort: enqueue never blocks a pipeline, failures are
// logged and dropped.
type Notifier struct {
	bot     telegramSender
	chats   []int64
	queue   chan string
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewNotifier connects the Telegram bot. An empty token yields a disabled
// notifier whose Send is a no-op.
func NewNotifier(token string, allowed map[int64]string, log zerolog.Logger) (*Notifier, error) {
	n := &Notifier{
		queue: make(chan string, notifyQueueSize),
		// Telegram allows ~30 msg/s per bot; one per second is plenty here.
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		log:     log.With().Str("component", "notifier").Logger(),
	}
	for id := range allowed {
		n.chats = append(n.chats, id)
	}
	sort.Slice(n.chats, func(i, j int) bool { return n.chats[i] < n.chats[j] })

	if token == "" {
		n.log.Warn().Msg("telegram token empty, notifications disabled")
		return n, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	n.bot = bot
	return n, nil
}

// Start runs the dispatcher until the context is canceled.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case text := <-n.queue:
				n.deliver(ctx, text)
			}
		}
	}()
}

// Send enqueues one message for every allowed chat. Never blocks: when the
// queue is full the message is dropped and logged.
func (n *Notifier) Send(text string) {
	if n.bot == nil || len(n.chats) == 0 {
		return
	}
	select {
	case n.queue <- text:
	default:
		n.log.Warn().Str("text", firstLine(text)).Msg("notify queue full, message dropped")
	}
}

func (n *Notifier) deliver(ctx context.Context, text string) {
	for _, chat := range n.chats {
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		msg := tgbotapi.NewMessage(chat, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Error().Err(err).Int64("chat", chat).Msg("failed to send notification")
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// symbolLink renders a markdown-style link for a symbol.
func symbolLink(symbol, name string) string {
	return fmt.Sprintf("%s %s (https://tw.stock.yahoo.com/quote/%s)", symbol, name, symbol)
}

// ReminderService sends the midnight reminder messages: ex-dividend days,
// payable dates, and open public-offering windows.
type ReminderService struct {
	dividends *dividends.Repository
	money     *moneyhistory.Repository
	offerings *publicoffering.Repository
	notifier  *Notifier
	log       zerolog.Logger

	now func() time.Time
}

// NewReminderService creates the reminder job bundle.
func NewReminderService(
	div *dividends.Repository,
	money *moneyhistory.Repository,
	off *publicoffering.Repository,
	notifier *Notifier,
	log zerolog.Logger,
) *ReminderService {
	return &ReminderService{
		dividends: div,
		money:     money,
		offerings: off,
		notifier:  notifier,
		log:       log.With().Str("service", "reminder").Logger(),
		now:       time.Now,
	}
}

// ExDividendReminder notifies about portfolio symbols going ex-dividend
// today.
func (s *ReminderService) ExDividendReminder(ctx context.Context) error {
	today := s.now().Format("2006-01-02")
	rows, err := s.dividends.ExDividendOn(ctx, today)
	if err != nil {
		return err
	}
	held, err := s.heldSymbols(ctx)
	if err != nil {
		return err
	}

	var lines []string
	for _, d := range rows {
		if _, ok := held[d.SecurityCode]; !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s 現金 %.2f 股票 %.2f",
			d.SecurityCode, d.CashDividend, d.StockDividend))
	}
	if len(lines) == 0 {
		return nil
	}
	s.notifier.Send("今日除權息:\n" + strings.Join(lines, "\n"))
	return nil
}

// PayableDateReminder notifies about dividends paying out today.
func (s *ReminderService) PayableDateReminder(ctx context.Context) error {
	today := s.now().Format("2006-01-02")
	rows, err := s.dividends.PayableOn(ctx, today)
	if err != nil {
		return err
	}
	held, err := s.heldSymbols(ctx)
	if err != nil {
		return err
	}

	var lines []string
	for _, d := range rows {
		if _, ok := held[d.SecurityCode]; !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s 現金 %.2f", d.SecurityCode, d.CashDividend))
	}
	if len(lines) == 0 {
		return nil
	}
	s.notifier.Send("今日發放股利:\n" + strings.Join(lines, "\n"))
	return nil
}

// OfferingWindowReminder notifies about subscription windows open today.
func (s *ReminderService) OfferingWindowReminder(ctx context.Context) error {
	day := s.now().Truncate(24 * time.Hour)
	windows, err := s.offerings.OpenWindows(ctx, day)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return nil
	}

	var lines []string
	for _, p := range windows {
		lines = append(lines, fmt.Sprintf("%s 申購 %s ~ %s 承銷價 %.2f",
			symbolLink(p.StockSymbol, p.Name),
			p.SubscriptionBegin.Format("01/02"),
			p.SubscriptionEnd.Format("01/02"),
			p.OfferingPrice))
	}
	s.notifier.Send("申購中:\n" + strings.Join(lines, "\n"))
	return nil
}

func (s *ReminderService) heldSymbols(ctx context.Context) (map[string]struct{}, error) {
	lots, err := s.money.ActiveLots(ctx)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(lots))
	for _, lot := range lots {
		held[lot.SecurityCode] = struct{}{}
	}
	return held, nil
}

// formatMoneyDelta renders the day-over-day portfolio message: one line per
// member plus the combined total, each with absolute and percentage change.
func formatMoneyDelta(today, previous []domain.DailyMoneyHistory, names map[int64]string) string {
	prev := make(map[int64]domain.DailyMoneyHistory, len(previous))
	var prevSum float64
	for _, t := range previous {
		prev[t.MemberID] = t
		prevSum += t.Sum
	}

	var b strings.Builder
	var todaySum float64
	for _, t := range today {
		todaySum += t.Sum
		name := names[t.MemberID]
		if name == "" {
			name = fmt.Sprintf("member %d", t.MemberID)
		}
		line := fmt.Sprintf("%s: %.0f", name, t.Sum)
		if p, ok := prev[t.MemberID]; ok && p.Sum != 0 {
			diff := t.Sum - p.Sum
			line += fmt.Sprintf(" (%+.0f, %+.2f%%)", diff, diff/p.Sum*100)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	total := fmt.Sprintf("合計: %.0f", todaySum)
	if prevSum != 0 {
		diff := todaySum - prevSum
		total += fmt.Sprintf(" (%+.0f, %+.2f%%)", diff, diff/prevSum*100)
	}
	b.WriteString(total)
	return b.String()
}
