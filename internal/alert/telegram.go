package alert

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"sentinel-monitor/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// telegramSender is the part of *tgbotapi.BotAPI the notifier uses
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	bot             telegramSender
	chatID          string
	parseMode       string
	enabled         bool
	maxRetries      int
	retryDelay      time.Duration
	messageTemplate *template.Template
	logger          *logrus.Logger
}

// NewTelegramNotifier connects to the Bot API. A disabled notifier never connects.
func NewTelegramNotifier(botToken, chatID, parseMode string, enabled bool, messageTemplate string, logger *logrus.Logger) (*TelegramNotifier, error) {
	if !enabled {
		return NewTelegramNotifierWithSender(nil, chatID, parseMode, false, messageTemplate, logger), nil
	}

	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	logger.Infof("Telegram notifier authorized as @%s", bot.Self.UserName)

	return NewTelegramNotifierWithSender(bot, chatID, parseMode, true, messageTemplate, logger), nil
}

func NewTelegramNotifierWithSender(bot telegramSender, chatID, parseMode string, enabled bool, messageTemplate string, logger *logrus.Logger) *TelegramNotifier {
	tn := &TelegramNotifier{
		bot:        bot,
		chatID:     chatID,
		parseMode:  parseMode,
		enabled:    enabled && bot != nil,
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     logger,
	}

	if strings.TrimSpace(messageTemplate) != "" {
		funcMap := template.FuncMap{
			"formatTime": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
			"percent": func(v float64) string {
				return fmt.Sprintf("%.2f%%", v*100)
			},
		}
		tmpl, err := template.New("telegram_message").Funcs(funcMap).Parse(messageTemplate)
		if err != nil {
			logger.Warnf("Failed to parse Telegram message template: %v, using default format", err)
		} else {
			tn.messageTemplate = tmpl
		}
	}

	return tn
}

func (tn *TelegramNotifier) Name() string { return "telegram" }

func (tn *TelegramNotifier) IsEnabled() bool {
	return tn.enabled
}

func (tn *TelegramNotifier) SendAlert(n model.Notification) error {
	if !tn.enabled {
		tn.logger.Debug("Telegram notifier is disabled, skipping alert")
		return nil
	}

	message := tn.formatMessage(n)

	var lastErr error
	for i := 0; i < tn.maxRetries; i++ {
		lastErr = tn.sendMessage(message)
		if lastErr == nil {
			return nil
		}

		tn.logger.Warnf("Failed to send alert (attempt %d/%d): %v", i+1, tn.maxRetries, lastErr)

		if i < tn.maxRetries-1 {
			time.Sleep(time.Duration(i+1) * tn.retryDelay)
		}
	}

	return fmt.Errorf("failed to send alert after %d attempts: %w", tn.maxRetries, lastErr)
}

func (tn *TelegramNotifier) formatMessage(n model.Notification) string {
	if tn.messageTemplate != nil {
		var buf bytes.Buffer
		if err := tn.messageTemplate.Execute(&buf, n); err != nil {
			tn.logger.Warnf("Failed to execute message template: %v, using default format", err)
		} else {
			return buf.String()
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SENTINEL ALERT: %s\n\n", n.Type)
	fmt.Fprintf(&b, "time: %s\n", n.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "severity: %s\n", n.Severity)
	if n.Stats != nil {
		fmt.Fprintf(&b, "status: %s\n", n.Stats.Status)
		fmt.Fprintf(&b, "probability: %.2f%%\n", n.Stats.Probability*100)
		fmt.Fprintf(&b, "syscall_rate: %.0f/sec\n", n.Stats.SyscallRate)
		fmt.Fprintf(&b, "file_churn: %.0f/sec\n", n.Stats.ChurnRate)
	}
	fmt.Fprintf(&b, "description: %s", n.Message)
	return b.String()
}

func (tn *TelegramNotifier) sendMessage(text string) error {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(tn.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		// @channelusername
		msg = tgbotapi.NewMessageToChannel(tn.chatID, text)
	}

	// Markdown modes choke on unescaped metric text
	if tn.parseMode != "" && tn.parseMode != tgbotapi.ModeMarkdown && tn.parseMode != tgbotapi.ModeMarkdownV2 {
		msg.ParseMode = tn.parseMode
	}

	if _, err := tn.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram API error: %w", err)
	}

	tn.logger.Infof("Alert sent to Telegram successfully")
	return nil
}

func (tn *TelegramNotifier) SendTestMessage() error {
	if !tn.enabled {
		return fmt.Errorf("telegram notifier is disabled")
	}
	return tn.sendMessage("Test Message\n\nSentinel monitor is working correctly!")
}
