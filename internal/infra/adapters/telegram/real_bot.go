package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-knowledge-bot/internal/application"
	"telegram-knowledge-bot/internal/config"
	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"
	"telegram-knowledge-bot/internal/domain/ports/adapter"
	red "telegram-knowledge-bot/internal/infra/redis"
	"telegram-knowledge-bot/internal/infra/state"
)

// Callback data prefixes. Data stays under Telegram's 64-byte limit.
const (
	cbApprovalPrefix = "apv:"
	cbCategoryPrefix = "cat:"
	cbSubcatPrefix   = "sub:"
)

// RealTelegramBot polls updates with tgbotapi and delegates to the app
// facade. It also implements the Notifier port: structured status updates
// come back here to be rendered and edited into the user's status message.
type RealTelegramBot struct {
	bot          *tgbotapi.BotAPI
	cfg          *config.BotConfig
	app          application.Service
	floodLimiter *red.FloodLimiter
	log          *zerolog.Logger

	updateWorkers int
	cancelPolling context.CancelFunc
}

var _ adapter.Notifier = (*RealTelegramBot)(nil)

func NewRealTelegramBot(cfg *config.BotConfig, floodLimiter *red.FloodLimiter, log *zerolog.Logger) (*RealTelegramBot, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	return &RealTelegramBot{
		bot:           bot,
		cfg:           cfg,
		floodLimiter:  floodLimiter,
		log:           log,
		updateWorkers: workers,
	}, nil
}

// Bind attaches the app facade. Separate from the constructor because the
// supervisor needs this bot as its Notifier before the facade exists.
func (r *RealTelegramBot) Bind(app application.Service) { r.app = app }

func (r *RealTelegramBot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := r.handleUpdate(ctx, up); err != nil {
						r.log.Error().Err(err).Int("worker", id).Msg("update handler error")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *RealTelegramBot) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	if update.Message == nil {
		return nil
	}
	tgUser := update.Message.From
	if tgUser == nil {
		return nil
	}
	chatID := update.Message.Chat.ID

	fields := strings.Fields(update.Message.Text)
	command := "message"
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		command = fields[0]
	}
	if r.floodLimiter != nil {
		allowed, err := r.floodLimiter.Allow(ctx, red.UserCommandKey(tgUser.ID, command), 20, time.Minute)
		if err != nil {
			r.log.Warn().Err(err).Msg("flood limiter error")
		} else if !allowed {
			return r.sendText(chatID, "Slow down a little, please.")
		}
	}

	switch command {
	case "/start":
		return r.sendText(chatID, welcomeText)

	case "/help":
		return r.sendText(chatID, helpText)

	case "/cancel":
		if err := r.app.CancelJob(ctx, tgUser.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return r.sendText(chatID, "Nothing to cancel.")
			}
			return r.sendText(chatID, "Failed to cancel.")
		}
		return nil // the terminal status update reports the cancellation

	case "/status":
		return r.sendText(chatID, r.statusText(tgUser.ID))

	case "/sessions":
		if !adminAllowed(r.cfg.AdminIDs, tgUser.ID) {
			return r.sendText(chatID, "Unknown command. /help")
		}
		return r.sendText(chatID, sessionsText(r.app.ActiveSessions()))

	default:
		text := strings.TrimSpace(update.Message.Text)
		if text == "" {
			return nil
		}
		_, err := r.app.HandleURL(ctx, tgUser.ID, text)
		if err != nil {
			return r.sendText(chatID, submitErrorText(err))
		}
		return r.sendText(chatID, "🔗 Link accepted. Processing...")
	}
}

func (r *RealTelegramBot) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	owner := query.From.ID
	var chatID int64
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	} else {
		chatID = owner
	}
	if chatID == 0 {
		return nil
	}

	data := strings.TrimSpace(query.Data)

	if r.floodLimiter != nil {
		if allowed, err := r.floodLimiter.Allow(ctx, red.UserCommandKey(owner, "cb"), 30, time.Minute); err == nil && !allowed {
			return r.sendText(chatID, "Slow down a little, please.")
		}
	}

	var err error
	switch {
	case strings.HasPrefix(data, cbApprovalPrefix):
		// apv:<action>:<jobID>
		parts := strings.SplitN(strings.TrimPrefix(data, cbApprovalPrefix), ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed callback data %q", data)
		}
		err = r.app.HandleApproval(ctx, owner, parts[1], parts[0])

	case strings.HasPrefix(data, cbCategoryPrefix):
		// cat:<jobID>:<value>
		parts := strings.SplitN(strings.TrimPrefix(data, cbCategoryPrefix), ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed callback data %q", data)
		}
		err = r.app.HandleSelection(ctx, owner, parts[0], model.SelectionCategory, parts[1])

	case strings.HasPrefix(data, cbSubcatPrefix):
		// sub:<jobID>:<value>
		parts := strings.SplitN(strings.TrimPrefix(data, cbSubcatPrefix), ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed callback data %q", data)
		}
		err = r.app.HandleSelection(ctx, owner, parts[0], model.SelectionSubcategory, parts[1])

	default:
		return fmt.Errorf("unknown callback data %q", data)
	}

	if err != nil {
		return r.sendText(chatID, callbackErrorText(err))
	}
	return nil
}

// Notify implements the Notifier port: renders the structured update into a
// message and edits the tracked status message in place. When the edit fails
// (message deleted, too old) a fresh message is sent and its ID returned.
func (r *RealTelegramBot) Notify(ctx context.Context, owner int64, ref int, upd adapter.StatusUpdate) (int, error) {
	select {
	case <-ctx.Done():
		return ref, ctx.Err()
	default:
	}

	text := renderStatus(upd)
	markup := renderMenu(upd.Menu)

	if ref != 0 {
		var err error
		if markup != nil {
			edit := tgbotapi.NewEditMessageTextAndMarkup(owner, ref, text, *markup)
			_, err = r.bot.Send(edit)
		} else {
			edit := tgbotapi.NewEditMessageText(owner, ref, text)
			_, err = r.bot.Send(edit)
		}
		if err == nil {
			return ref, nil
		}
		r.log.Debug().Err(err).Int64("owner", owner).Int("ref", ref).Msg("edit failed, sending new message")
	}

	msg := tgbotapi.NewMessage(owner, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := r.bot.Send(msg)
	if err != nil {
		return ref, err
	}
	return sent.MessageID, nil
}

func (r *RealTelegramBot) sendText(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// adminAllowed reports whether the user may run operator commands.
func adminAllowed(adminIDs []int64, id int64) bool {
	for _, a := range adminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// sessionsText renders the operator overview of all active sessions.
func sessionsText(views []state.SessionView) string {
	if len(views) == 0 {
		return "No active sessions."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d active session(s):\n", len(views))
	for _, v := range views {
		fmt.Fprintf(&b, "• %d %s %s\n", v.Owner, v.JobID, stageLine(v.State))
	}
	return strings.TrimSpace(b.String())
}

func (r *RealTelegramBot) statusText(owner int64) string {
	for _, v := range r.app.ActiveSessions() {
		if v.Owner == owner && v.JobID != "" {
			return fmt.Sprintf("Current job: %s\nURL: %s", stageLine(v.State), v.URL)
		}
	}
	return "No job in progress. Send me a video link!"
}

// menuData encodes a MenuAction into callback data.
func menuData(a adapter.MenuAction) string {
	if a.Kind == "approval" {
		return cbApprovalPrefix + a.Value + ":" + a.JobID
	}
	if a.Field == model.SelectionCategory {
		return cbCategoryPrefix + a.JobID + ":" + a.Value
	}
	return cbSubcatPrefix + a.JobID + ":" + a.Value
}

func renderMenu(menu []adapter.MenuAction) *tgbotapi.InlineKeyboardMarkup {
	if len(menu) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menu))
	for _, a := range menu {
		label := a.Label
		if a.Marked {
			label = "⭐ " + label
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, menuData(a)),
		})
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func renderStatus(upd adapter.StatusUpdate) string {
	switch upd.State {
	case model.JobStateAwaitingApproval:
		return renderCheckpoint(upd)
	case model.JobStateCompleted:
		var b strings.Builder
		b.WriteString("✅ Knowledge entry saved!\n")
		if upd.Result != nil {
			b.WriteString("📄 " + upd.Result.MarkdownPath + "\n")
			if upd.Result.DatabaseSaved {
				b.WriteString("🗄 Indexed in the database.\n")
			} else {
				b.WriteString("🗄 Database index skipped.\n")
			}
		}
		if len(upd.QualityFlags) > 0 {
			b.WriteString("⚠️ Notes: " + strings.Join(upd.QualityFlags, ", "))
		}
		return strings.TrimSpace(b.String())
	case model.JobStateFailed:
		if upd.Reason != "" {
			return "❌ Processing failed: " + upd.Reason
		}
		return "❌ Processing failed."
	case model.JobStateRejected:
		return "🚫 Rejected. Nothing was saved."
	case model.JobStateCancelled:
		return "⏹ Cancelled."
	default:
		return stageLine(upd.State)
	}
}

// renderCheckpoint renders the approval preview or, on later updates within
// the checkpoint, the selection prompt that goes with the attached menu.
func renderCheckpoint(upd adapter.StatusUpdate) string {
	if upd.Preview != nil {
		a := upd.Preview
		var b strings.Builder
		b.WriteString("🔍 Analysis complete!\n\n")
		b.WriteString("📌 " + a.Title + "\n")
		b.WriteString("🏷 Topic: " + a.Topic + "\n")
		if a.Difficulty != "" {
			b.WriteString("📈 Level: " + a.Difficulty + "\n")
		}
		b.WriteString("\n" + a.Summary + "\n")
		if len(a.KeyPoints) > 0 {
			b.WriteString("\nKey points:\n")
			for _, kp := range a.KeyPoints {
				b.WriteString("• " + kp + "\n")
			}
		}
		if a.Truncated {
			b.WriteString("\n⚠️ The analysis may be incomplete. Re-analyze if something looks off.\n")
		}
		if upd.Suggestion != nil {
			b.WriteString(fmt.Sprintf("\n💡 Suggested category: %s", upd.Suggestion.Category.Display()))
		}
		b.WriteString("\n\nSave this to the knowledge base?")
		return b.String()
	}
	if len(upd.Menu) > 0 && upd.Menu[0].Field == model.SelectionCategory {
		return "📂 Choose a category:"
	}
	if len(upd.Menu) > 0 && upd.Menu[0].Field == model.SelectionSubcategory {
		return "📂 Choose a subcategory:"
	}
	return "Waiting for your decision."
}

func stageLine(st model.JobState) string {
	switch st {
	case model.JobStateQueued:
		return "⏳ Queued..."
	case model.JobStateDownloading:
		return "⬇️ Downloading video..."
	case model.JobStateAnalyzing:
		return "🔍 Analyzing content..."
	case model.JobStateAwaitingApproval:
		return "⏸ Waiting for approval"
	case model.JobStateAuthoring:
		return "✍️ Writing the article..."
	case model.JobStateEvaluatingImages:
		return "🎨 Deciding on diagrams..."
	case model.JobStateGeneratingImages:
		return "🖼 Generating diagrams..."
	case model.JobStateAssembling:
		return "📦 Assembling the entry..."
	case model.JobStatePersisting:
		return "💾 Saving..."
	default:
		return string(st)
	}
}

func submitErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedURL):
		return "Please send a TikTok or Instagram video link."
	case errors.Is(err, domain.ErrRateLimited):
		return "Hourly limit reached. Try again a bit later."
	case errors.Is(err, domain.ErrJobActive):
		return "You already have a video in progress. /cancel it first."
	case errors.Is(err, domain.ErrQueueFull):
		return "The bot is busy right now. Please try again in a minute."
	default:
		return "Something went wrong. Please try again."
	}
}

func callbackErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		return "This menu has expired. Send the link again."
	case errors.Is(err, domain.ErrSelectionOrder):
		return "Pick a category first."
	case errors.Is(err, domain.ErrInvalidSelection):
		return "That option is not available."
	default:
		return "Something went wrong. Please try again."
	}
}

const welcomeText = `👋 Hi! Send me a TikTok or Instagram video link and I will turn it into a knowledge base entry.

I download the video, analyze it, and after your approval write a full article and file it under the category you pick.

/help for the details.`

const helpText = `Commands:
/start - intro
/status - current job
/cancel - cancel the current job
/help - this message

Just paste a TikTok or Instagram link to begin. Up to 10 videos per hour.`
