package telegram_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restockbot/backend/internal/logger"
	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/reports"
	"restockbot/backend/internal/session"
	"restockbot/backend/internal/storage"
	"restockbot/backend/internal/telegram"
)

const (
	reporterChat  int64 = 1001
	moderatorChat int64 = -100
	alertChat     int64 = -200
)

var catalog = &models.Catalog{Locations: []models.Location{
	{Key: "store-a", Name: "Store A", Address: "1 Main St", Region: "north"},
	{Key: "store-b", Name: "Store B", Address: "2 Main St", Region: "north"},
	{Key: "store-c", Name: "Store C", Address: "3 Side St", Region: "south"},
}}

// fakeSender records what the bot would have sent to Telegram.
type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	edits    []tgbotapi.EditMessageTextConfig
	answers  []tgbotapi.CallbackConfig
	failChat int64
	nextID   int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		if f.failChat != 0 && m.ChatID == f.failChat {
			return tgbotapi.Message{}, errors.New("chat not found")
		}
		f.messages = append(f.messages, m)
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, m)
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.answers = append(f.answers, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(chatID int64) tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].ChatID == chatID {
			return f.messages[i]
		}
	}
	return tgbotapi.MessageConfig{}
}

func (f *fakeSender) count(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.ChatID == chatID {
			n++
		}
	}
	return n
}

func (f *fakeSender) lastAnswer() tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return tgbotapi.CallbackConfig{}
	}
	return f.answers[len(f.answers)-1]
}

// button returns the callback data of the button labelled label.
func button(t *testing.T, msg tgbotapi.MessageConfig, label string) string {
	t.Helper()
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "message %q has no inline keyboard", msg.Text)
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.Text == label && b.CallbackData != nil {
				return *b.CallbackData
			}
		}
	}
	t.Fatalf("no button %q in message %q", label, msg.Text)
	return ""
}

type botFixture struct {
	bot    *telegram.BotService
	svc    *reports.Service
	sender *fakeSender
	now    time.Time
	nextCB int
}

// Wednesday 2026-10-14 12:00 UTC.
func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	f := &botFixture{
		sender: &fakeSender{},
		now:    time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	store := storage.New(storage.NewMemoryBackend(), logger.Discard(), metrics.Nop{}, storage.WithClock(clock))
	sessions := session.NewMemoryCache(5*time.Minute, metrics.Nop{})
	sessions.SetClock(clock)
	publisher := telegram.NewPublisher(f.sender, alertChat, time.UTC, logger.Discard())

	f.svc = reports.NewService(store, catalog, sessions, publisher, logger.Discard(), metrics.Nop{},
		reports.WithClock(clock),
	)
	f.bot = telegram.NewBotService(f.sender, f.svc, moderatorChat, time.UTC, logger.Discard())
	return f
}

func (f *botFixture) command(chatID, userID int64, text string) {
	word := strings.SplitN(text, " ", 2)[0]
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(word)}},
		From:     &tgbotapi.User{ID: userID, UserName: "user"},
		Chat:     tgbotapi.Chat{ID: chatID},
	}})
}

func (f *botFixture) text(chatID, userID int64, text string) {
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: userID},
		Chat: tgbotapi.Chat{ID: chatID},
	}})
}

func (f *botFixture) press(chatID, userID int64, msg tgbotapi.MessageConfig, data string) {
	f.nextCB++
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-" + string(rune('a'+f.nextCB)),
		From: &tgbotapi.User{ID: userID, UserName: "mod"},
		Message: &tgbotapi.Message{
			MessageID: 42,
			Text:      msg.Text,
			Chat:      tgbotapi.Chat{ID: chatID},
		},
		Data: data,
	}})
}

// walk presses the buttons labelled in order, each on the latest message in chatID.
func (f *botFixture) walk(t *testing.T, chatID, userID int64, labels ...string) {
	t.Helper()
	for _, label := range labels {
		msg := f.sender.last(chatID)
		f.press(chatID, userID, msg, button(t, msg, label))
	}
}

func (f *botFixture) pending(t *testing.T) []models.Report {
	t.Helper()
	out, err := f.svc.PendingReports(context.Background())
	require.NoError(t, err)
	return out
}

func TestReportFlow_LiveSightingIsApprovedAndAlerted(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/report")
	assert.Equal(t, "What did you see?", f.sender.last(reporterChat).Text)

	f.walk(t, reporterChat, 7, "Restocking right now", "north", "Store A")
	confirm := f.sender.last(reporterChat)
	assert.Contains(t, confirm.Text, "Location: Store A (north)")
	assert.Contains(t, confirm.Text, "Kind: in_progress")

	f.walk(t, reporterChat, 7, "Submit")
	assert.Equal(t, "Thanks! Your report was sent to the moderators.", f.sender.last(reporterChat).Text)

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, "7", pending[0].SubmitterID)
	assert.Equal(t, "@user", pending[0].SubmitterName)
	assert.Equal(t, f.now, pending[0].OccurredAt)

	modMsg := f.sender.last(moderatorChat)
	assert.Contains(t, modMsg.Text, pending[0].ID)
	f.press(moderatorChat, 99, modMsg, button(t, modMsg, "✅ Approve"))

	assert.Empty(t, f.pending(t))
	require.Len(t, f.sender.edits, 1)
	assert.Contains(t, f.sender.edits[0].Text, "APPROVED by @mod")
	assert.Contains(t, f.sender.last(alertChat).Text, "Restock in progress: Store A")

	report, err := f.svc.GetReport(context.Background(), pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "99", report.ReviewerID)

	// A second press on the same button reports the conflict and changes nothing.
	f.press(moderatorChat, 99, modMsg, button(t, modMsg, "✅ Approve"))
	assert.Equal(t, "This report was already approved.", f.sender.lastAnswer().Text)
	assert.Equal(t, 1, f.sender.count(alertChat))
}

func TestReportFlow_UpcomingAsksForNote(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/report")
	f.walk(t, reporterChat, 7, "Restock announced", "north", "Store B", "Tomorrow")
	assert.Contains(t, f.sender.last(reporterChat).Text, "Add a short note")

	f.text(reporterChat, 7, "truck at 9am")
	confirm := f.sender.last(reporterChat)
	assert.Contains(t, confirm.Text, "Note: truck at 9am")
	assert.Contains(t, confirm.Text, "When: Thu 15 Oct 12:00")

	f.walk(t, reporterChat, 7, "Submit")
	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, models.KindUpcoming, pending[0].Kind)
	assert.Equal(t, "truck at 9am", pending[0].Note)
}

func TestReportFlow_PastDate(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/report")
	f.walk(t, reporterChat, 7, "Already restocked", "south", "Store C", "Yesterday", "Submit")

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, f.now.AddDate(0, 0, -1), pending[0].OccurredAt)
}

func TestReportFlow_DeniedAtLocationStep(t *testing.T) {
	f := newBotFixture(t)
	_, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "other",
	})
	require.NoError(t, err)

	f.command(reporterChat, 7, "/report")
	f.walk(t, reporterChat, 7, "Restocking right now", "north", "Store A")

	assert.Equal(t, "This location already has a pending report awaiting review.", f.sender.last(reporterChat).Text)
	assert.Len(t, f.pending(t), 1)
}

func TestReportFlow_Cancel(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/report")
	kinds := f.sender.last(reporterChat)
	f.walk(t, reporterChat, 7, "Cancel")
	assert.Equal(t, "Report cancelled.", f.sender.last(reporterChat).Text)

	// The discarded session can no longer be advanced.
	f.press(reporterChat, 7, kinds, button(t, kinds, "Restocking right now"))
	assert.Equal(t, "This form has expired. Please start again.", f.sender.lastAnswer().Text)

	f.command(reporterChat, 7, "/cancel")
	assert.Equal(t, "There is nothing to cancel.", f.sender.last(reporterChat).Text)
}

func TestReportFlow_ForeignUserCannotAdvanceSession(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/report")
	kinds := f.sender.last(reporterChat)
	f.press(reporterChat, 8, kinds, button(t, kinds, "Restocking right now"))

	assert.Equal(t, "This form has expired. Please start again.", f.sender.lastAnswer().Text)
}

func TestReportFlow_ForeignUserCannotCancelSession(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/report")
	kinds := f.sender.last(reporterChat)
	f.press(reporterChat, 8, kinds, button(t, kinds, "Cancel"))
	assert.Equal(t, "This form has expired. Please start again.", f.sender.lastAnswer().Text)

	// The owner's form is still alive.
	f.press(reporterChat, 7, kinds, button(t, kinds, "Restocking right now"))
	regions := f.sender.last(reporterChat)
	button(t, regions, "north")
}

func TestReportFlow_NotePromptBelongsToOneUser(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/report")
	f.walk(t, reporterChat, 7, "Restock announced", "north", "Store B", "Tomorrow")
	sent := f.sender.count(reporterChat)

	// Someone else chatting in the same group is not taken as the note.
	f.text(reporterChat, 8, "anyone seen the truck?")
	assert.Equal(t, sent, f.sender.count(reporterChat))

	f.command(reporterChat, 8, "/cancel")
	assert.Equal(t, "There is nothing to cancel.", f.sender.last(reporterChat).Text)

	f.text(reporterChat, 7, "truck at 9am")
	assert.Contains(t, f.sender.last(reporterChat).Text, "Note: truck at 9am")
}

func TestModeration_OnlyFromModeratorChat(t *testing.T) {
	f := newBotFixture(t)
	r, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "7",
	})
	require.NoError(t, err)

	data, err := telegram.Route{Action: telegram.ActionApprove, Value: r.ID}.Encode()
	require.NoError(t, err)
	f.press(reporterChat, 7, tgbotapi.MessageConfig{}, data)

	assert.Equal(t, "Only moderators can do that.", f.sender.lastAnswer().Text)
	assert.Len(t, f.pending(t), 1)

	f.command(reporterChat, 7, "/approve "+r.ID)
	assert.Equal(t, "Only moderators can do that.", f.sender.last(reporterChat).Text)
	assert.Len(t, f.pending(t), 1)
}

func TestModeration_CommandWithNote(t *testing.T) {
	f := newBotFixture(t)
	r, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "7",
	})
	require.NoError(t, err)

	f.command(moderatorChat, 99, "/approve "+r.ID+" aisle 5 full")
	assert.Equal(t, "Report "+r.ID+" approved.", f.sender.last(moderatorChat).Text)
	assert.Contains(t, f.sender.last(alertChat).Text, "aisle 5 full")

	f.command(moderatorChat, 99, "/reject")
	assert.Contains(t, f.sender.last(moderatorChat).Text, "usage: /reject <report-id> [note]")
}

func TestModeration_AlertFailureStillResolves(t *testing.T) {
	f := newBotFixture(t)
	f.sender.failChat = alertChat
	r, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "7",
	})
	require.NoError(t, err)

	f.command(moderatorChat, 99, "/approve "+r.ID)
	assert.Equal(t, "Report "+r.ID+" approved.", f.sender.last(moderatorChat).Text)
	assert.Empty(t, f.pending(t))
}

func TestCheckedAndHistory(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/checked")
	f.walk(t, reporterChat, 7, "south", "Store C")
	assert.Equal(t, "Marked Store C as checked.", f.sender.last(reporterChat).Text)

	r, err := f.svc.Submit(context.Background(), reports.Submission{
		LocationKey: "store-a", Kind: models.KindInProgress, SubmitterID: "7",
	})
	require.NoError(t, err)
	_, err = f.svc.Resolve(context.Background(), r.ID, reports.Approve, "99", "")
	require.NoError(t, err)

	f.command(reporterChat, 7, "/history north")
	history := f.sender.last(reporterChat).Text
	assert.Contains(t, history, "Restock history:")
	assert.Contains(t, history, "• Store A: Wed 14 Oct 12:00 / none")
	assert.NotContains(t, history, "Store C")

	f.command(reporterChat, 7, "/history nowhere")
	assert.Equal(t, "No history recorded yet.", f.sender.last(reporterChat).Text)
}

func TestLocalizedReplies(t *testing.T) {
	f := newBotFixture(t)
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/report",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 7}},
		From:     &tgbotapi.User{ID: 7, LanguageCode: "uk"},
		Chat:     tgbotapi.Chat{ID: reporterChat},
	}})
	assert.Equal(t, "Що ви побачили?", f.sender.last(reporterChat).Text)
}

func TestUnknownCommandAndStrayText(t *testing.T) {
	f := newBotFixture(t)

	f.command(reporterChat, 7, "/dance")
	assert.Equal(t, "Unknown command. Send /help for the list.", f.sender.last(reporterChat).Text)

	before := f.sender.count(reporterChat)
	f.text(reporterChat, 7, "hello?")
	assert.Equal(t, before, f.sender.count(reporterChat))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newBotFixture(t)
	updates := make(chan tgbotapi.Update, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.bot.Run(ctx, updates)
		close(done)
	}()

	updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/help",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
		From:     &tgbotapi.User{ID: 7},
		Chat:     tgbotapi.Chat{ID: reporterChat},
	}}
	require.Eventually(t, func() bool { return f.sender.count(reporterChat) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
