// Package notify sends operator-facing alerts (kill-switch trips, circuit
// breaker trips, incomplete or invalid TP/SL) out of the trading loop.
// Adapted from the
// teacher's Telegram notifier: the entry-confirmation keyboard flow and the
// MEXC-specific /positions command are dropped (this engine trades
// autonomously per spec.md — there is no human-confirm gate), leaving the
// plain outbound Send/Sendf surface the rest of the domain actually needs.
package notify

import (
	"fmt"
	"log"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier is the alerting surface the orchestrator sends operator notices
// through. The Sentinel's ReattachSkipped-Margin and the reconciler's
// EquityDrift are logged, not sent through it.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Telegram is a passive outbound notifier: it only ever pushes messages,
// it never waits on operator input.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Stdout is the no-credentials fallback: logs everything, used in local/dev
// runs where no Telegram token is configured.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Send(msg string) { log.Println(msg) }

func (s *Stdout) Sendf(format string, args ...any) { log.Printf(format, args...) }
