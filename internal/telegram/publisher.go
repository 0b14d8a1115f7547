package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"restockbot/backend/internal/reports"
)

const dateLayout = "Mon 02 Jan 15:04"

// Publisher posts approved live sightings and weekly recaps to one chat.
type Publisher struct {
	Sender   Sender
	ChatID   int64
	Location *time.Location

	logger *slog.Logger
}

func NewPublisher(sender Sender, chatID int64, loc *time.Location, log *slog.Logger) *Publisher {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{Sender: sender, ChatID: chatID, Location: loc, logger: log}
}

// PublishAlert implements reports.AlertPublisher.
func (p *Publisher) PublishAlert(ctx context.Context, alert reports.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(p.ChatID, FormatAlert(alert, p.Location))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := p.Sender.Send(msg); err != nil {
		return fmt.Errorf("send alert to chat %d: %w", p.ChatID, err)
	}
	return nil
}

// PublishRecap implements reports.RecapPublisher with one message per region. Every
// region is attempted; the first failure is returned.
func (p *Publisher) PublishRecap(ctx context.Context, recaps []reports.RegionRecap) error {
	var firstErr error
	for _, recap := range recaps {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(p.ChatID, FormatRecap(recap, p.Location))
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := p.Sender.Send(msg); err != nil {
			p.logger.Error("failed to send recap",
				slog.String("region", recap.Region),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("send recap for %s: %w", recap.Region, err)
			}
		}
	}
	return firstErr
}

// FormatAlert renders an alert as Markdown.
func FormatAlert(alert reports.Alert, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *Restock in progress: %s*\n", alert.Location.Name)
	if alert.Location.Address != "" {
		fmt.Fprintf(&b, "%s\n", alert.Location.Address)
	}
	fmt.Fprintf(&b, "Seen at %s", alert.OccurredAt.In(loc).Format(dateLayout))
	if alert.ModeratorNote != "" {
		fmt.Fprintf(&b, "\n_%s_", alert.ModeratorNote)
	}
	return b.String()
}

// FormatRecap renders one region's weekly summary as Markdown.
func FormatRecap(recap reports.RegionRecap, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Weekly recap: %s* (week of %s)\n", recap.Region, recap.WeekStart.In(loc).Format("02 Jan"))
	if len(recap.Restocked) == 0 {
		b.WriteString("\nNo restocks this week.")
	} else {
		b.WriteString("\nRestocked:")
		for _, e := range recap.Restocked {
			fmt.Fprintf(&b, "\n• %s, %s", e.Location.Name, e.At.In(loc).Format(dateLayout))
		}
	}
	if len(recap.NotRestocked) > 0 {
		b.WriteString("\n\nNot restocked:")
		for _, l := range recap.NotRestocked {
			fmt.Fprintf(&b, "\n• %s", l.Name)
		}
	}
	return b.String()
}
