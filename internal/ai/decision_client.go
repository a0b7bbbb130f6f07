package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/enrichment"
	"github.com/kirillm/agent-arena/internal/intelligence"
	"github.com/kirillm/agent-arena/internal/marketdata"
)

// минимальная длина reasoning, ниже которой ответ считается мусором
const minReasoningLength = 10

// ChatProvider абстракция chat API (для подмены в тестах)
type ChatProvider interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
}

// DecisionClient запрашивает торговое решение для одного агента за цикл
type DecisionClient struct {
	provider ChatProvider
}

// NewDecisionClient создает decision client
func NewDecisionClient(provider ChatProvider) *DecisionClient {
	return &DecisionClient{provider: provider}
}

// PositionStatus позиция агента в контексте решения
type PositionStatus struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// AgentStats историческая статистика агента
type AgentStats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
}

// DecisionRequest контекст для принятия решения
type DecisionRequest struct {
	AgentName    string                     `json:"agent_name"`
	ModelLabel   string                     `json:"-"`
	CashBalance  float64                    `json:"cash_balance"`
	AccountValue float64                    `json:"account_value"`
	Positions    []PositionStatus           `json:"positions"`
	Market       []enrichment.EnrichedQuote `json:"market"`
	Assessment   *intelligence.Assessment   `json:"assessment"`
	Stats        AgentStats                 `json:"stats"`
	News         []marketdata.NewsItem      `json:"news,omitempty"`
}

// DecisionResponse структурированное решение AI
type DecisionResponse struct {
	Action         string  `json:"action"` // BUY, SELL, SELL_SHORT, BUY_TO_COVER, HOLD
	Symbol         string  `json:"symbol"`
	Quantity       float64 `json:"quantity"`
	Confidence     float64 `json:"confidence"` // 0.0 - 1.0
	Reasoning      string  `json:"reasoning"`
	RiskAssessment string  `json:"risk_assessment"`
	TargetPrice    float64 `json:"target_price"`
	StopLoss       float64 `json:"stop_loss"`
	Invalidation   string  `json:"invalidation"`
}

// SafeHold возвращает защитное решение-заглушку.
// Используется вместо любого решения, которое не удалось получить
// или нормализовать — малформированный вывод никогда не доходит
// до исполнения.
func SafeHold(reason string) *DecisionResponse {
	return &DecisionResponse{
		Action:     domain.ActionHold,
		Confidence: 0,
		Reasoning:  "defensive default: " + reason,
	}
}

// RequestDecision запрашивает решение у модели агента.
// Всегда возвращает пригодное решение: при ошибке провайдера или
// малформированном ответе — SafeHold, а ошибка возвращается только
// для логирования.
func (dc *DecisionClient) RequestDecision(ctx context.Context, req DecisionRequest) (*DecisionResponse, error) {
	prompt, err := buildDecisionPrompt(req)
	if err != nil {
		return SafeHold("failed to build context"), fmt.Errorf("build prompt: %w", err)
	}

	messages := []Message{
		{Role: "system", Content: decisionSystemPrompt(req.AgentName)},
		{Role: "user", Content: prompt},
	}

	raw, err := dc.provider.Chat(ctx, req.ModelLabel, messages)
	if err != nil {
		return SafeHold("AI provider unavailable"), fmt.Errorf("AI request failed: %w", err)
	}

	decision, err := parseDecision(raw)
	if err != nil {
		return SafeHold("unparsable AI response"), fmt.Errorf("parse decision: %w", err)
	}

	if err := normalizeDecision(decision); err != nil {
		return SafeHold(err.Error()), fmt.Errorf("invalid decision: %w", err)
	}

	return decision, nil
}

// parseDecision разбирает JSON ответа, вытаскивая его из markdown при
// необходимости
func parseDecision(raw string) (*DecisionResponse, error) {
	var decision DecisionResponse
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		cleaned := extractJSON(raw)
		if err2 := json.Unmarshal([]byte(cleaned), &decision); err2 != nil {
			return nil, fmt.Errorf("failed to parse AI response: %w", err2)
		}
	}
	return &decision, nil
}

// normalizeDecision приводит решение к контракту:
// - действие из белого списка (иначе ошибка);
// - confidence зажимается в [0, 1];
// - reasoning не короче минимума;
// - действия кроме HOLD требуют символ.
func normalizeDecision(d *DecisionResponse) error {
	d.Action = strings.ToUpper(strings.TrimSpace(d.Action))
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))

	if !domain.ValidActions[d.Action] {
		return fmt.Errorf("invalid action %q", d.Action)
	}

	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}

	if len(strings.TrimSpace(d.Reasoning)) < minReasoningLength {
		return fmt.Errorf("reasoning too short")
	}

	if d.Action != domain.ActionHold {
		if d.Symbol == "" {
			return fmt.Errorf("missing symbol for action %s", d.Action)
		}
		if d.Quantity < 0 {
			return fmt.Errorf("negative quantity")
		}
	}

	return nil
}

// extractJSON извлекает JSON из markdown code block
func extractJSON(text string) string {
	start := -1
	end := -1

	for i := 0; i < len(text)-2; i++ {
		if text[i:i+3] == "```" {
			if start == -1 {
				start = i + 3
				// Пропускаем "json" если есть
				if i+7 < len(text) && text[i+3:i+7] == "json" {
					start = i + 7
				}
				if start < len(text) && text[start] == '\n' {
					start++
				}
			} else {
				end = i
				break
			}
		}
	}

	if start > 0 && end > start {
		return text[start:end]
	}

	return text
}
