// Package telegram sends completion notifications for finished
// analysis jobs to a configured chat.
package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/alphalens/alphalens/internal/adapters/config"
	"github.com/alphalens/alphalens/pkg/logger"
	"github.com/alphalens/alphalens/pkg/models"
)

// Notifier posts job outcomes to Telegram. Implements jobs.Notifier.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier creates the Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat ID is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{api: bot, chatID: cfg.ChatID}, nil
}

// NotifyJobFinished posts a summary of a terminal job. Send failures
// are logged and swallowed; notifications never affect the job.
func (n *Notifier) NotifyJobFinished(job *models.AnalysisJob) {
	msg := tgbotapi.NewMessage(n.chatID, formatJob(job))
	msg.ParseMode = "Markdown"

	if _, err := n.api.Send(msg); err != nil {
		logger.Error("failed to send telegram notification",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func formatJob(job *models.AnalysisJob) string {
	var b strings.Builder

	switch job.Status {
	case models.JobCompleted:
		fmt.Fprintf(&b, "✅ *%s* %s analysis complete\n", job.Symbol, job.AnalysisType)
	case models.JobFailed:
		fmt.Fprintf(&b, "❌ *%s* %s analysis failed\n", job.Symbol, job.AnalysisType)
		if job.Error != nil {
			fmt.Fprintf(&b, "Error: %s\n", *job.Error)
		}
		return b.String()
	default:
		fmt.Fprintf(&b, "*%s* %s analysis %s\n", job.Symbol, job.AnalysisType, job.Status)
		return b.String()
	}

	rec := job.FinalResult
	if rec == nil {
		return b.String()
	}

	fmt.Fprintf(&b, "Verdict: *%s* (%d%% confidence)\n", verdictLabel(rec.Recommendation), rec.Confidence)
	if rec.EntryPrice != nil {
		fmt.Fprintf(&b, "Entry: %.4g\n", *rec.EntryPrice)
	}
	if rec.PriceTarget != nil {
		fmt.Fprintf(&b, "Target: %.4g\n", *rec.PriceTarget)
	}
	if rec.StopLoss != nil {
		fmt.Fprintf(&b, "Stop: %.4g\n", *rec.StopLoss)
	}
	if rec.ForexSetup != nil && rec.ForexSetup.RiskReward > 0 {
		fmt.Fprintf(&b, "R/R: %.2f\n", rec.ForexSetup.RiskReward)
	}
	if rec.Reasoning != "" {
		reasoning := rec.Reasoning
		if len(reasoning) > 300 {
			reasoning = reasoning[:300] + "..."
		}
		fmt.Fprintf(&b, "\n%s", reasoning)
	}

	return b.String()
}

func verdictLabel(r models.Recommendation) string {
	switch r {
	case models.RecStrongBuy:
		return "STRONG BUY"
	case models.RecBuy:
		return "BUY"
	case models.RecSell:
		return "SELL"
	case models.RecStrongSell:
		return "STRONG SELL"
	case models.RecWait:
		return "WAIT"
	default:
		return "HOLD"
	}
}
