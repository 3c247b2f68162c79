// Package telegram adapts the bot to Telegram: inbound text messages are
// routed to the dispatcher and answered in-chat, and the same connection
// doubles as the outbound push channel for notifications.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Dispatcher handles one inbound message and returns the reply text.
type Dispatcher interface {
	Dispatch(ctx context.Context, ownerID, text string) string
}

type Bot struct {
	log logx.Logger
	bot *tele.Bot

	mu       sync.Mutex
	dispatch Dispatcher
	running  bool
	stopPoll func()
	done     chan struct{}
}

func New(cfg Config, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	b := &Bot{log: log, bot: tb}
	b.registerHandlers()
	return b, nil
}

// SetDispatcher binds the message handler. The bot answers nothing until a
// dispatcher is set, so bind before Start.
func (b *Bot) SetDispatcher(d Dispatcher) {
	b.mu.Lock()
	b.dispatch = d
	b.mu.Unlock()
}

func (b *Bot) dispatcher() Dispatcher {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatch
}

func (b *Bot) registerHandlers() {
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		d := b.dispatcher()
		if d == nil {
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("panic in message handler",
					logx.Int64("chat", m.Chat.ID),
					logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		ownerID := strconv.FormatInt(m.Chat.ID, 10)
		reply := d.Dispatch(context.Background(), ownerID, m.Text)
		if reply == "" {
			return nil
		}
		return c.Send(reply)
	})
}

// Start begins long-polling in the background. Idempotent while running.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.done = make(chan struct{})
	// telebot's Stop hands the poll loop a token it consumes exactly once;
	// a second Stop blocks forever. Both the ctx watcher and Bot.Stop go
	// through this Once so only one of them ever reaches the underlying call.
	b.stopPoll = sync.OnceFunc(b.bot.Stop)

	stop, done := b.stopPoll, b.done
	go func() {
		<-ctx.Done()
		stop()
	}()
	go func() {
		defer close(done)
		b.log.Info("telegram polling started")
		b.bot.Start()
		b.log.Info("telegram polling stopped")
	}()
}

// Stop halts polling and waits for the poll loop to exit, bounded by ctx.
func (b *Bot) Stop(ctx context.Context) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	stop, done := b.stopPoll, b.done
	b.mu.Unlock()

	stop()
	select {
	case <-done:
	case <-ctx.Done():
		b.log.Warn("telegram stop timed out", logx.Err(ctx.Err()))
	}
}

// Send pushes a message to the owner's chat. Implements the notifier
// backend; the owner id is the chat id in decimal.
func (b *Bot) Send(ctx context.Context, ownerID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(ownerID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad owner id %q: %w", ownerID, err)
	}
	if _, err := b.bot.Send(tele.ChatID(chatID), text); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}
