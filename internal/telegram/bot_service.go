// Package telegram is the chat front-end of the restock tracker. It walks reporters
// through the multi-step report form, posts new reports to the moderator chat with
// approve/reject buttons, and publishes alerts and weekly recaps.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"restockbot/backend/internal/localization"
	"restockbot/backend/internal/models"
	"restockbot/backend/internal/reports"
	"restockbot/backend/internal/session"
)

var (
	errNotModerator = errors.New("not a moderator")
	errUnknownRoute = errors.New("unknown callback action")
)

type (
	commandHandler  func(ctx context.Context, msg *tgbotapi.Message) error
	callbackHandler func(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error
)

// BotService receives Telegram updates and drives the report service.
type BotService struct {
	Sender          Sender
	Reports         *reports.Service
	Localizer       *localization.Localizer
	ModeratorChatID int64
	Location        *time.Location

	logger    *slog.Logger
	commands  map[string]commandHandler
	callbacks map[Action]callbackHandler

	mu sync.Mutex
	// Users whose next text message in a chat is the note for the session token held here.
	awaitingNote map[noteKey]string
}

type noteKey struct {
	chatID int64
	userID string
}

// NewBotService creates a BotService. moderatorChatID 0 disables moderator
// notifications and the moderation buttons.
func NewBotService(sender Sender, svc *reports.Service, moderatorChatID int64, loc *time.Location, log *slog.Logger) *BotService {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	s := &BotService{
		Sender:          sender,
		Reports:         svc,
		Localizer:       localization.Default(),
		ModeratorChatID: moderatorChatID,
		Location:        loc,
		logger:          log,
		awaitingNote:    make(map[noteKey]string),
	}
	s.commands = map[string]commandHandler{
		"start":   s.handleHelp,
		"help":    s.handleHelp,
		"report":  s.handleReportCommand,
		"checked": s.handleCheckedCommand,
		"history": s.handleHistoryCommand,
		"cancel":  s.handleCancelCommand,
		"approve": s.handleModerationCommand,
		"reject":  s.handleModerationCommand,
	}
	s.callbacks = map[Action]callbackHandler{
		ActionKind:          s.onKind,
		ActionRegion:        s.onRegion,
		ActionLocation:      s.onLocation,
		ActionDate:          s.onDate,
		ActionConfirm:       s.onConfirm,
		ActionCancel:        s.onCancel,
		ActionApprove:       s.onModeration,
		ActionReject:        s.onModeration,
		ActionCheckRegion:   s.onCheckRegion,
		ActionCheckLocation: s.onCheckLocation,
	}
	return s
}

// Start long-polls bot for updates until ctx is cancelled.
func (s *BotService) Start(ctx context.Context, bot *tgbotapi.BotAPI) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	s.logger.Info("telegram bot started", slog.String("account", bot.Self.UserName))

	s.Run(ctx, updates)
	bot.StopReceivingUpdates()
}

// Run handles updates one at a time until ctx is cancelled or updates is closed.
func (s *BotService) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate routes one update to its command, text or callback handler.
func (s *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		s.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		s.handleMessage(ctx, update.Message)
	}
}

func (s *BotService) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	lang := msg.From.LanguageCode

	var err error
	if msg.IsCommand() {
		handler, ok := s.commands[msg.Command()]
		if !ok {
			s.reply(msg.Chat.ID, s.Localizer.GetString(lang, "unknown_command"), nil)
			return
		}
		err = handler(ctx, msg)
	} else if token, ok := s.noteSession(msg.Chat.ID, userID(msg.From)); ok {
		err = s.handleNote(ctx, msg, token)
	} else {
		return
	}

	if err != nil {
		s.logFailure("command failed", err, slog.Int64("chat_id", msg.Chat.ID), slog.String("text", msg.Text))
		s.reply(msg.Chat.ID, s.errorText(lang, err), nil)
	}
}

func (s *BotService) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	var err error
	route, parseErr := ParseRoute(q.Data)
	handler, ok := s.callbacks[route.Action]
	switch {
	case parseErr != nil:
		err = parseErr
	case !ok:
		err = errUnknownRoute
	case q.Message == nil || q.From == nil:
		err = errUnknownRoute
	default:
		err = handler(ctx, q, route)
	}

	answer := ""
	if err != nil {
		lang := ""
		if q.From != nil {
			lang = q.From.LanguageCode
		}
		answer = s.errorText(lang, err)
		s.logFailure("callback failed", err, slog.String("action", string(route.Action)))
		if q.Message != nil && !errors.Is(err, errNotModerator) {
			s.reply(q.Message.Chat.ID, answer, nil)
		}
	}

	callback := tgbotapi.NewCallback(q.ID, answer)
	if _, err := s.Sender.Request(callback); err != nil {
		s.logger.Warn("failed to answer callback", slog.String("error", err.Error()))
	}
}

// --- report form ---

func (s *BotService) handleReportCommand(ctx context.Context, msg *tgbotapi.Message) error {
	if s.Reports.Sessions == nil {
		return session.ErrNotFound
	}
	s.clearNoteSession(msg.Chat.ID, userID(msg.From))

	token, err := s.Reports.Sessions.Create(ctx, userID(msg.From), session.Draft{
		SubmitterName: displayName(msg.From),
		Origin:        models.OriginCommand,
	})
	if err != nil {
		return err
	}

	lang := msg.From.LanguageCode
	kb, err := keyboard(
		[]choice{{s.Localizer.GetString(lang, "kind_in_progress"), Route{ActionKind, token, string(models.KindInProgress)}}},
		[]choice{{s.Localizer.GetString(lang, "kind_past"), Route{ActionKind, token, string(models.KindPast)}}},
		[]choice{{s.Localizer.GetString(lang, "kind_upcoming"), Route{ActionKind, token, string(models.KindUpcoming)}}},
		[]choice{{s.Localizer.GetString(lang, "btn_cancel"), Route{ActionCancel, token, ""}}},
	)
	if err != nil {
		return err
	}
	return s.reply(msg.Chat.ID, s.Localizer.GetString(lang, "choose_kind"), &kb)
}

func (s *BotService) onKind(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	kind := models.ReportKind(r.Value)
	if !kind.Valid() {
		return &reports.ValidationError{Field: "kind", Reason: "unknown report kind"}
	}
	if _, err := s.Reports.Sessions.Update(ctx, r.Session, userID(q.From), session.Draft{Kind: kind}); err != nil {
		return err
	}

	lang := q.From.LanguageCode
	var rows [][]choice
	for _, region := range s.Reports.Catalog.Regions() {
		rows = append(rows, []choice{{region, Route{ActionRegion, r.Session, region}}})
	}
	rows = append(rows, []choice{{s.Localizer.GetString(lang, "btn_cancel"), Route{ActionCancel, r.Session, ""}}})
	kb, err := keyboard(rows...)
	if err != nil {
		return err
	}
	return s.reply(q.Message.Chat.ID, s.Localizer.GetString(lang, "choose_region"), &kb)
}

func (s *BotService) onRegion(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	if _, err := s.Reports.Sessions.Update(ctx, r.Session, userID(q.From), session.Draft{Region: r.Value}); err != nil {
		return err
	}
	return s.sendLocations(q.Message.Chat.ID, q.From.LanguageCode, r.Value, ActionLocation, r.Session)
}

func (s *BotService) onLocation(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	submitter := userID(q.From)
	draft, err := s.Reports.Sessions.Update(ctx, r.Session, submitter, session.Draft{LocationKey: r.Value})
	if err != nil {
		return err
	}

	// Tell the reporter now rather than after the whole form.
	decision, err := s.Reports.CheckSubmission(ctx, submitter, r.Value)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		if dErr := s.Reports.Sessions.Discard(ctx, r.Session, submitter); dErr != nil {
			s.logger.Warn("failed to discard session", slog.String("error", dErr.Error()))
		}
		return &reports.DeniedError{Reason: decision.Reason, DaysLeft: decision.DaysLeft, Detail: decision.Detail}
	}

	lang := q.From.LanguageCode
	var rows [][]choice
	switch draft.Kind {
	case models.KindPast:
		rows = [][]choice{
			{{s.Localizer.GetString(lang, "date_today"), Route{ActionDate, r.Session, "0"}}},
			{{s.Localizer.GetString(lang, "date_yesterday"), Route{ActionDate, r.Session, "-1"}}},
			{{s.Localizer.GetString(lang, "date_two_days_ago"), Route{ActionDate, r.Session, "-2"}}},
		}
	case models.KindUpcoming:
		rows = [][]choice{
			{{s.Localizer.GetString(lang, "date_today"), Route{ActionDate, r.Session, "0"}}},
			{{s.Localizer.GetString(lang, "date_tomorrow"), Route{ActionDate, r.Session, "1"}}},
			{{s.Localizer.GetString(lang, "date_in_two_days"), Route{ActionDate, r.Session, "2"}}},
		}
	default:
		draft, err = s.Reports.Sessions.Update(ctx, r.Session, submitter, session.Draft{OccurredAt: s.Reports.Now()})
		if err != nil {
			return err
		}
		return s.sendConfirmation(q.Message.Chat.ID, lang, r.Session, draft)
	}
	kb, err := keyboard(rows...)
	if err != nil {
		return err
	}
	return s.reply(q.Message.Chat.ID, s.Localizer.GetString(lang, "choose_date"), &kb)
}

func (s *BotService) onDate(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	offset, err := strconv.Atoi(r.Value)
	if err != nil || offset < -2 || offset > 2 {
		return &reports.ValidationError{Field: "date", Reason: "unrecognized day"}
	}
	at := s.Reports.Now().AddDate(0, 0, offset)
	draft, err := s.Reports.Sessions.Update(ctx, r.Session, userID(q.From), session.Draft{OccurredAt: at})
	if err != nil {
		return err
	}

	lang := q.From.LanguageCode
	if draft.Kind == models.KindUpcoming {
		s.setNoteSession(q.Message.Chat.ID, userID(q.From), r.Session)
		return s.reply(q.Message.Chat.ID, s.Localizer.GetString(lang, "prompt_note"), nil)
	}
	return s.sendConfirmation(q.Message.Chat.ID, lang, r.Session, draft)
}

func (s *BotService) handleNote(ctx context.Context, msg *tgbotapi.Message, token string) error {
	if strings.TrimSpace(msg.Text) == "" {
		return &reports.ValidationError{Field: "note", Reason: "send the note as text"}
	}
	s.clearNoteSession(msg.Chat.ID, userID(msg.From))
	draft, err := s.Reports.Sessions.Update(ctx, token, userID(msg.From), session.Draft{Note: msg.Text})
	if err != nil {
		return err
	}
	return s.sendConfirmation(msg.Chat.ID, msg.From.LanguageCode, token, draft)
}

func (s *BotService) sendConfirmation(chatID int64, lang, token string, draft session.Draft) error {
	kb, err := keyboard([]choice{
		{s.Localizer.GetString(lang, "btn_confirm"), Route{ActionConfirm, token, ""}},
		{s.Localizer.GetString(lang, "btn_cancel"), Route{ActionCancel, token, ""}},
	})
	if err != nil {
		return err
	}
	summary := s.describe(draft.LocationKey, draft.Kind, draft.OccurredAt, draft.Note)
	return s.reply(chatID, s.Localizer.Format(lang, "confirm_report", summary), &kb)
}

func (s *BotService) onConfirm(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	report, err := s.Reports.SubmitSession(ctx, r.Session, userID(q.From))
	if err != nil {
		return err
	}
	if err := s.reply(q.Message.Chat.ID, s.Localizer.GetString(q.From.LanguageCode, "report_submitted"), nil); err != nil {
		s.logger.Warn("failed to confirm submission", slog.String("error", err.Error()))
	}
	return s.notifyModerators(report)
}

func (s *BotService) onCancel(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	user := userID(q.From)
	if err := s.Reports.Sessions.Discard(ctx, r.Session, user); err != nil {
		return err
	}
	s.clearNoteSession(q.Message.Chat.ID, user)
	return s.reply(q.Message.Chat.ID, s.Localizer.GetString(q.From.LanguageCode, "report_cancelled"), nil)
}

func (s *BotService) handleCancelCommand(ctx context.Context, msg *tgbotapi.Message) error {
	lang := msg.From.LanguageCode
	user := userID(msg.From)
	token, ok := s.noteSession(msg.Chat.ID, user)
	if !ok {
		return s.reply(msg.Chat.ID, s.Localizer.GetString(lang, "nothing_to_cancel"), nil)
	}
	s.clearNoteSession(msg.Chat.ID, user)
	if err := s.Reports.Sessions.Discard(ctx, token, user); err != nil {
		return err
	}
	return s.reply(msg.Chat.ID, s.Localizer.GetString(lang, "report_cancelled"), nil)
}

// --- moderation ---

func (s *BotService) notifyModerators(report *models.Report) error {
	if s.ModeratorChatID == 0 {
		return nil
	}
	kb, err := keyboard([]choice{
		{"✅ Approve", Route{Action: ActionApprove, Value: report.ID}},
		{"❌ Reject", Route{Action: ActionReject, Value: report.ID}},
	})
	if err != nil {
		return err
	}
	return s.reply(s.ModeratorChatID, s.moderationText(report), &kb)
}

func (s *BotService) moderationText(report *models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 New report %s\n", report.ID)
	b.WriteString(s.describe(report.LocationKey, report.Kind, report.OccurredAt, report.Note))
	by := report.SubmitterName
	if by == "" {
		by = report.SubmitterID
	}
	fmt.Fprintf(&b, "\nBy: %s", by)
	return b.String()
}

func (s *BotService) onModeration(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	if s.ModeratorChatID == 0 || q.Message.Chat.ID != s.ModeratorChatID {
		return errNotModerator
	}
	decision := reports.Approve
	if r.Action == ActionReject {
		decision = reports.Reject
	}
	res, err := s.resolve(ctx, r.Value, decision, q.From, "")
	if err != nil {
		return err
	}

	text := fmt.Sprintf("%s\n\n%s by %s", q.Message.Text, strings.ToUpper(string(res.Report.Status)), displayName(q.From))
	edit := tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, text)
	if _, err := s.Sender.Send(edit); err != nil {
		s.logger.Warn("failed to update moderation message", slog.String("error", err.Error()))
	}
	return nil
}

// handleModerationCommand handles "/approve <report-id> [note]" and "/reject <report-id>"
// from the moderator chat.
func (s *BotService) handleModerationCommand(ctx context.Context, msg *tgbotapi.Message) error {
	if s.ModeratorChatID == 0 || msg.Chat.ID != s.ModeratorChatID {
		return errNotModerator
	}
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return &reports.ValidationError{Field: "report", Reason: "usage: /" + msg.Command() + " <report-id> [note]"}
	}
	decision, err := reports.ParseDecision(msg.Command())
	if err != nil {
		return err
	}
	note := strings.Join(args[1:], " ")

	res, err := s.resolve(ctx, args[0], decision, msg.From, note)
	if err != nil {
		return err
	}
	return s.reply(msg.Chat.ID, fmt.Sprintf("Report %s %s.", res.Report.ID, res.Report.Status), nil)
}

// resolve treats an undelivered alert as success: the decision is committed and the
// failure has already been logged.
func (s *BotService) resolve(ctx context.Context, reportID string, decision reports.Decision, reviewer *tgbotapi.User, note string) (*reports.Resolution, error) {
	res, err := s.Reports.Resolve(ctx, reportID, decision, userID(reviewer), note)
	if err != nil && !(res != nil && errors.Is(err, reports.ErrAlertNotDelivered)) {
		return nil, err
	}
	return res, nil
}

// --- checked / history ---

func (s *BotService) handleCheckedCommand(_ context.Context, msg *tgbotapi.Message) error {
	var rows [][]choice
	for _, region := range s.Reports.Catalog.Regions() {
		rows = append(rows, []choice{{region, Route{Action: ActionCheckRegion, Value: region}}})
	}
	kb, err := keyboard(rows...)
	if err != nil {
		return err
	}
	return s.reply(msg.Chat.ID, s.Localizer.GetString(msg.From.LanguageCode, "choose_region"), &kb)
}

func (s *BotService) onCheckRegion(_ context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	return s.sendLocations(q.Message.Chat.ID, q.From.LanguageCode, r.Value, ActionCheckLocation, "")
}

func (s *BotService) onCheckLocation(ctx context.Context, q *tgbotapi.CallbackQuery, r Route) error {
	if err := s.Reports.MarkLocationChecked(ctx, r.Value, userID(q.From)); err != nil {
		return err
	}
	name := r.Value
	if l, ok := s.Reports.Catalog.Lookup(r.Value); ok {
		name = l.Name
	}
	return s.reply(q.Message.Chat.ID, s.Localizer.Format(q.From.LanguageCode, "location_checked", name), nil)
}

func (s *BotService) handleHistoryCommand(ctx context.Context, msg *tgbotapi.Message) error {
	lang := msg.From.LanguageCode
	history, err := s.Reports.QueryHistory(ctx, strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return s.reply(msg.Chat.ID, s.Localizer.GetString(lang, "history_empty"), nil)
	}

	never := s.Localizer.GetString(lang, "history_never")
	var b strings.Builder
	b.WriteString(s.Localizer.GetString(lang, "history_header"))
	for _, h := range history {
		name := h.LocationKey
		if l, ok := s.Reports.Catalog.Lookup(h.LocationKey); ok {
			name = l.Name
		}
		fmt.Fprintf(&b, "\n• %s: %s / %s", name, s.formatDate(h.CurrentWeek, never), s.formatDate(h.PreviousWeek, never))
	}
	return s.reply(msg.Chat.ID, b.String(), nil)
}

func (s *BotService) handleHelp(_ context.Context, msg *tgbotapi.Message) error {
	return s.reply(msg.Chat.ID, s.Localizer.GetString(msg.From.LanguageCode, "help"), nil)
}

// --- helpers ---

type choice struct {
	Label string
	Route Route
}

func keyboard(rows ...[]choice) (tgbotapi.InlineKeyboardMarkup, error) {
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, c := range row {
			data, err := c.Route.Encode()
			if err != nil {
				return tgbotapi.InlineKeyboardMarkup{}, err
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label, data))
		}
		markup = append(markup, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(markup...), nil
}

func (s *BotService) sendLocations(chatID int64, lang, region string, action Action, token string) error {
	locations := s.Reports.Catalog.InRegion(region)
	if region == "" || len(locations) == 0 {
		return s.reply(chatID, s.Localizer.GetString(lang, "no_locations"), nil)
	}
	rows := make([][]choice, 0, len(locations)+1)
	for _, l := range locations {
		rows = append(rows, []choice{{l.Name, Route{action, token, l.Key}}})
	}
	if token != "" {
		rows = append(rows, []choice{{s.Localizer.GetString(lang, "btn_cancel"), Route{ActionCancel, token, ""}}})
	}
	kb, err := keyboard(rows...)
	if err != nil {
		return err
	}
	return s.reply(chatID, s.Localizer.GetString(lang, "choose_location"), &kb)
}

func (s *BotService) reply(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := s.Sender.Send(msg); err != nil {
		s.logger.Error("failed to send telegram message",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (s *BotService) describe(locationKey string, kind models.ReportKind, at time.Time, note string) string {
	name := locationKey
	if l, ok := s.Reports.Catalog.Lookup(locationKey); ok {
		name = fmt.Sprintf("%s (%s)", l.Name, l.Region)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s\nKind: %s", name, kind)
	if !at.IsZero() {
		fmt.Fprintf(&b, "\nWhen: %s", at.In(s.Location).Format(dateLayout))
	}
	if note != "" {
		fmt.Fprintf(&b, "\nNote: %s", note)
	}
	return b.String()
}

func (s *BotService) formatDate(t *time.Time, never string) string {
	if t == nil {
		return never
	}
	return t.In(s.Location).Format(dateLayout)
}

func (s *BotService) errorText(lang string, err error) string {
	switch {
	case errors.Is(err, errNotModerator):
		return s.Localizer.GetString(lang, "not_moderator")
	case errors.Is(err, errUnknownRoute), errors.Is(err, errMalformedRoute):
		return s.Localizer.GetString(lang, "unknown_command")
	}
	return reports.UserMessage(err)
}

func (s *BotService) logFailure(msg string, err error, attrs ...any) {
	var (
		validation *reports.ValidationError
		denied     *reports.DeniedError
		resolved   *reports.AlreadyResolvedError
	)
	if errors.As(err, &validation) || errors.As(err, &denied) || errors.As(err, &resolved) ||
		errors.Is(err, session.ErrNotFound) || errors.Is(err, errNotModerator) {
		s.logger.Debug(msg, append(attrs, slog.String("error", err.Error()))...)
		return
	}
	s.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
}

func (s *BotService) noteSession(chatID int64, user string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.awaitingNote[noteKey{chatID, user}]
	return token, ok
}

func (s *BotService) setNoteSession(chatID int64, user, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaitingNote[noteKey{chatID, user}] = token
}

func (s *BotService) clearNoteSession(chatID int64, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.awaitingNote, noteKey{chatID, user})
}

func userID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
