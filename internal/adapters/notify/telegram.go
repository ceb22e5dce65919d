package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ratelimit"
)

// Telegram implements ports.Notifier over the Bot API. Cycle summaries
// stay on the console; Telegram only carries alerts and true-edge finds,
// so an operator away from the terminal still sees what matters.
type Telegram struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	attempts int
	base     time.Duration
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: create bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, attempts: 3, base: time.Second}, nil
}

// NotifyCycle sends a short message only when the cycle found something.
func (t *Telegram) NotifyCycle(ctx context.Context, opps []domain.Opportunity, _ []domain.Position) error {
	if len(opps) == 0 {
		return nil
	}

	best := opps[0]
	text := fmt.Sprintf("Edge found: %s\nedge %.0f bps, est. profit $%.2f, size $%.2f",
		best.Question, best.EdgeBps, best.EstProfitUSD, best.SizeUSD)
	if len(opps) > 1 {
		text += fmt.Sprintf("\n(+%d more this cycle)", len(opps)-1)
	}
	return t.send(ctx, text)
}

// NotifyAlert delivers a high-priority message.
func (t *Telegram) NotifyAlert(ctx context.Context, title, detail string) error {
	return t.send(ctx, fmt.Sprintf("⚠ %s\n%s", title, detail))
}

// send delivers one message with retries. Telegram's own rate limiting
// shows up as transient errors, the backoff absorbs it.
func (t *Telegram) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)

	err := ratelimit.Retry(ctx, t.attempts, t.base, func() error {
		_, err := t.bot.Send(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("notify.Telegram: send: %w", err)
	}
	return nil
}
