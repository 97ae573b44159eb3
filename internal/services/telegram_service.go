package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TelegramService delivers urgent dispatch alerts to the operators' chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	client      *http.Client
	logger      *zap.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     "https://api.telegram.org",
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.logger.Debug("telegram bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		s.logger.Debug("telegram admin chat not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// NotifyUrgent tells the admin chat that an order has waited too long for a store.
func (s *TelegramService) NotifyUrgent(ctx context.Context, notice UrgentNotice) error {
	channel := "수발주"
	if notice.Source == SourceHomepage {
		channel = "홈페이지"
	}

	message := fmt.Sprintf(`<b>🚨 미배정 주문 긴급 알림</b>
<b>📋 주문:</b> %s (%s)
<b>💐 상품:</b> %s
<b>📍 배송지:</b> %s
<b>💰 금액:</b> %s
<b>⏱ 미배정:</b> %s
━━━━━━━━━━━━━━━━━━`,
		notice.OrderNumber,
		channel,
		notice.ProductName,
		notice.Address,
		FormatPrice(notice.Subtotal),
		formatWait(notice.Unassigned),
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// FormatPrice formats a won amount with thousand separators.
func FormatPrice(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	str := fmt.Sprintf("%d", amount)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return sign + result.String() + "원"
}

func formatWait(d time.Duration) string {
	d = d.Truncate(time.Minute)
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours == 0 {
		return fmt.Sprintf("%d분", minutes)
	}
	return fmt.Sprintf("%d시간 %d분", hours, minutes)
}

// LogNotifier writes urgent alerts to the log when no chat is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyUrgent(_ context.Context, notice UrgentNotice) error {
	n.logger.Warn("urgent unassigned order",
		zap.String("order_id", notice.OrderID),
		zap.String("order_number", notice.OrderNumber),
		zap.String("source", string(notice.Source)),
		zap.Duration("unassigned", notice.Unassigned),
	)
	return nil
}
