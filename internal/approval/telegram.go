package approval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type telegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramNotifier posts pending requests to a chat and accepts
// "/approve <id> [note]" and "/reject <id> [note]" replies from that chat.
type TelegramNotifier struct {
	bot    telegramBot
	chatID int64
	svc    *Service
	logger *zap.Logger
}

// NewTelegramNotifier connects a bot with token that reports to chatID.
func NewTelegramNotifier(token string, chatID int64, svc *Service, logger *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init failed: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram approval bot connected", zap.String("username", bot.Self.UserName))
	return newTelegramNotifier(bot, chatID, svc, logger), nil
}

func newTelegramNotifier(bot telegramBot, chatID int64, svc *Service, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID, svc: svc, logger: logger}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Notify(_ context.Context, req Request) error {
	text := fmt.Sprintf(
		"Approval required\nrequest: %s\nrun: %s\naction: %s\nlimit: %d\ntime filter: %t\nexpires: %s\n\nReply /approve %s or /reject %s",
		req.ID, req.RunID, req.Action, req.Limit, req.HasTimeFilter,
		req.ExpiresAt.Format("15:04:05 MST"), req.ID, req.ID,
	)
	_, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text))
	return err
}

// Listen processes chat commands until ctx ends.
func (n *TelegramNotifier) Listen(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := n.bot.GetUpdatesChan(u)
	defer n.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			n.handleMessage(update.Message)
		}
	}
}

func (n *TelegramNotifier) handleMessage(msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.Chat.ID != n.chatID {
		return
	}
	if !msg.IsCommand() {
		return
	}

	cmd := msg.Command()
	if cmd != "approve" && cmd != "reject" {
		return
	}

	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		n.reply(fmt.Sprintf("usage: /%s <id> [note]", cmd))
		return
	}
	id := fields[0]
	decision := DecisionInput{
		DecidedBy: "telegram:" + senderName(msg),
		Note:      strings.Join(fields[1:], " "),
	}

	var (
		req Request
		err error
	)
	if cmd == "approve" {
		req, err = n.svc.Approve(id, decision)
	} else {
		req, err = n.svc.Reject(id, decision)
	}
	if err != nil {
		n.logger.Warn("telegram approval command failed", zap.String("command", cmd), zap.String("request_id", id), zap.Error(err))
		n.reply(fmt.Sprintf("%s %s failed: %v", cmd, id, err))
		return
	}
	n.reply(fmt.Sprintf("request %s %s", req.ID, req.Status))
}

func (n *TelegramNotifier) reply(text string) {
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		n.logger.Warn("telegram reply failed", zap.Error(err))
	}
}

func senderName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return "unknown"
	}
	if msg.From.UserName != "" {
		return msg.From.UserName
	}
	return strconv.FormatInt(msg.From.ID, 10)
}
