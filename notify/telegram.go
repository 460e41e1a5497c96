package notify

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"carwatch/models"
	"carwatch/utils"
)

// Min interval between two messages to the same chat.
const sendInterval = time.Second

var brasilia = time.FixedZone("BRT", -3*60*60)

// Sender delivers one already formatted HTML message.
type Sender interface {
	Send(text string) error
}

type botSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func (s *botSender) Send(text string) error {
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := s.bot.Send(msg)
	return err
}

// TelegramNotifier sends run observations to a Telegram chat, one message at a
// time and in order. Without a Sender it only logs what it would have sent.
type TelegramNotifier struct {
	sender Sender
	logger *utils.Logger
	retry  *utils.RetryConfig
	pool   *utils.WorkerPool

	sent   int64
	failed int64
}

// NewTelegramNotifier connects to the Bot API. An empty token or chat id
// yields a log-only notifier.
func NewTelegramNotifier(token string, chatID int64, logger *utils.Logger, retry *utils.RetryConfig) (*TelegramNotifier, error) {
	if token == "" || chatID == 0 {
		logger.Warn("[telegram] No TELEGRAM_TOKEN/TELEGRAM_CHAT_ID, messages will only be logged")
		return NewNotifier(nil, logger, retry, sendInterval), nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	bot.Debug = false
	logger.Info("[telegram] Authorized as @%s", bot.Self.UserName)

	return NewNotifier(&botSender{bot: bot, chatID: chatID}, logger, retry, sendInterval), nil
}

// NewNotifier creates a notifier over any Sender. sender may be nil.
func NewNotifier(sender Sender, logger *utils.Logger, retry *utils.RetryConfig, interval time.Duration) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		logger: logger,
		retry:  retry,
		pool:   utils.NewWorkerPool(1, interval),
	}
}

// NotifyRun sends a header followed by one message per observation and waits
// for delivery. Nothing is sent for an empty run.
func (n *TelegramNotifier) NotifyRun(ctx context.Context, label string, observations []*models.Observation, now time.Time) {
	if len(observations) == 0 {
		n.logger.Info("[telegram] Nothing to report")
		return
	}

	n.enqueue(ctx, FormatHeader(label, len(observations), now))
	for _, o := range observations {
		n.enqueue(ctx, FormatObservation(o))
	}
	n.pool.Wait()

	n.logger.Info("[telegram] Delivered %d messages, %d failed",
		atomic.LoadInt64(&n.sent), atomic.LoadInt64(&n.failed))
}

// NotifyBySource sends one NotifyRun batch per listing source, in the order
// the sources first appear.
func (n *TelegramNotifier) NotifyBySource(ctx context.Context, observations []*models.Observation, now time.Time) {
	var order []string
	groups := make(map[string][]*models.Observation)
	for _, o := range observations {
		src := o.Listing.Source
		if _, ok := groups[src]; !ok {
			order = append(order, src)
		}
		groups[src] = append(groups[src], o)
	}

	if len(order) == 0 {
		n.logger.Info("[telegram] Nothing to report")
		return
	}
	for _, src := range order {
		n.NotifyRun(ctx, src, groups[src], now)
	}
}

func (n *TelegramNotifier) enqueue(ctx context.Context, text string) {
	n.pool.Submit(func() {
		if n.sender == nil {
			n.logger.Info("[telegram] Would send:\n%s", text)
			return
		}
		if ctx.Err() != nil {
			atomic.AddInt64(&n.failed, 1)
			return
		}

		err := n.retry.DoContext(ctx, "telegram-send", func() error {
			return n.sender.Send(text)
		})
		if err != nil {
			atomic.AddInt64(&n.failed, 1)
			n.logger.Error("[telegram] %v", err)
			return
		}
		atomic.AddInt64(&n.sent, 1)
	})
}

// FormatHeader renders the run banner in Brasília time.
func FormatHeader(label string, count int, now time.Time) string {
	return fmt.Sprintf("🏁 <b>%s:</b> %s\n%d anúncio(s) para revisar\n\n%s",
		escape(label), now.In(brasilia).Format("02/01 15:04"), count, strings.Repeat("━", 30))
}

var statusBadges = map[models.Status]string{
	models.StatusNew:       "🆕 <b>NOVO</b>",
	models.StatusDecreased: "📉 <b>BAIXOU</b>",
	models.StatusIncreased: "📈 <b>SUBIU</b>",
	models.StatusUnchanged: "➖ <b>SEM ALTERAÇÃO</b>",
}

// FormatObservation renders one observation as a Telegram HTML message.
func FormatObservation(o *models.Observation) string {
	l := o.Listing
	var b strings.Builder

	fmt.Fprintf(&b, "%s | 🚗 <b>%s</b>\n", statusBadges[o.Status], escape(l.FullName()))

	fmt.Fprintf(&b, "💰 %s", escape(l.DisplayPrice))
	if (o.Status == models.StatusDecreased || o.Status == models.StatusIncreased) && o.PreviousPrice > 0 {
		delta := (l.NumericPrice - o.PreviousPrice) / o.PreviousPrice * 100
		fmt.Fprintf(&b, " (antes %s, %+.1f%%)", utils.FormatBRL(o.PreviousPrice), delta)
	}
	if l.ModelYear != "" {
		fmt.Fprintf(&b, " | 📅 %s", escape(l.ModelYear))
	}
	b.WriteString("\n")

	if l.Odometer > 0 {
		fmt.Fprintf(&b, "📟 %d km\n", l.Odometer)
	}
	if l.City != "" {
		fmt.Fprintf(&b, "📍 Local: %s\n", escape(l.City))
	}

	if v := o.Valuation; v != nil {
		fmt.Fprintf(&b, "📊 FIPE: %s (%s, %s)", escape(v.Value), escape(v.ModelName), escape(v.YearLabel))
		if pct, ok := o.FipeDiffPercent(); ok {
			fmt.Fprintf(&b, " | %+.1f%%", pct)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("📊 FIPE: não encontrado\n")
	}

	fmt.Fprintf(&b, "🔗 <a href=\"%s\">Ver Anúncio</a>", escapeAttr(l.Link))
	return b.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

// escapeAttr also escapes quotes, which EscapeText leaves alone.
func escapeAttr(s string) string {
	return attrQuotes.Replace(escape(s))
}

var attrQuotes = strings.NewReplacer(`"`, "&quot;", "'", "&#39;")
