package history

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"attachget/internal/config"
	"attachget/internal/model"
)

const (
	maxPageSize   = 100 // ограничение Discord на один запрос истории
	maxRetryDelay = 30 * time.Second
)

// Source: часть discordgo.Session, нужная для чтения истории канала.
type Source interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// PageError описывает ошибку получения одного батча истории.
type PageError struct {
	ChannelID string
	BeforeID  string
	Attempt   int
	Err       error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch messages of %s before %q (attempt %d): %v", e.ChannelID, e.BeforeID, e.Attempt, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

type Paginator struct {
	src Source
	cfg config.History
}

func New(src Source, cfg config.History) *Paginator {
	if cfg.PageSize <= 0 || cfg.PageSize > maxPageSize {
		cfg.PageSize = maxPageSize
	}
	if cfg.MaxPageErrors <= 0 {
		cfg.MaxPageErrors = 1
	}
	return &Paginator{src: src, cfg: cfg}
}

// Messages обходит историю канала от новых сообщений к старым и отдаёт
// каждое сообщение ровно один раз.
//
// Ошибка батча отдаётся как *PageError, после чего тот же батч
// запрашивается снова после паузы RetryDelay (удваивается с каждой
// ошибкой); после MaxPageErrors ошибок подряд обход прекращается.
// Отмена ctx завершает обход с ctx.Err().
func (p *Paginator) Messages(ctx context.Context, channelID string) iter.Seq2[model.Message, error] {
	return func(yield func(model.Message, error) bool) {
		log := slog.With("op", "history", "channelID", channelID)

		var (
			beforeID string
			failures int
			total    int
		)

		for {
			if err := ctx.Err(); err != nil {
				yield(model.Message{}, err)
				return
			}

			msgs, err := p.src.ChannelMessages(channelID, p.cfg.PageSize, beforeID, "", "", discordgo.WithContext(ctx))
			if err != nil {
				failures++
				pageErr := &PageError{ChannelID: channelID, BeforeID: beforeID, Attempt: failures, Err: err}
				if !yield(model.Message{}, pageErr) {
					return
				}
				if failures >= p.cfg.MaxPageErrors {
					log.Warn("too many page errors, stop", "failures", failures, "seen", total)
					return
				}
				if err := sleep(ctx, retryDelay(p.cfg.RetryDelay, failures)); err != nil {
					yield(model.Message{}, err)
					return
				}
				continue
			}
			failures = 0

			for _, m := range msgs {
				total++
				if !yield(convert(m, channelID), nil) {
					return
				}
			}

			log.Debug("page processed", "count", len(msgs), "seen", total)

			if len(msgs) < p.cfg.PageSize {
				return
			}
			beforeID = msgs[len(msgs)-1].ID
		}
	}
}

// retryDelay: base, 2*base, 4*base, ... не больше maxRetryDelay.
func retryDelay(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < failures && d < maxRetryDelay; i++ {
		d *= 2
	}
	return min(d, maxRetryDelay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tm := time.NewTimer(d)
	defer tm.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}

func convert(m *discordgo.Message, channelID string) model.Message {
	msg := model.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Timestamp: m.Timestamp,
	}
	if msg.ChannelID == "" {
		msg.ChannelID = channelID
	}
	if len(m.Attachments) > 0 {
		msg.Attachments = make([]model.Attachment, 0, len(m.Attachments))
		for _, a := range m.Attachments {
			if a == nil {
				continue
			}
			msg.Attachments = append(msg.Attachments, model.Attachment{
				ID:          a.ID,
				MessageID:   m.ID,
				URL:         a.URL,
				Filename:    a.Filename,
				ContentType: a.ContentType,
				Size:        a.Size,
			})
		}
	}
	return msg
}
