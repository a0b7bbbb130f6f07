package ai

import (
	"encoding/json"
	"fmt"
	"time"
)

// decisionSystemPrompt системный промпт трейдера-агента
func decisionSystemPrompt(agentName string) string {
	return fmt.Sprintf(`You are %s, an autonomous stock trading agent competing in a simulated arena.
You manage a cash balance and open positions. Each cycle you receive a market
snapshot with technical indicators, a market regime assessment, your portfolio
state and your historical win/loss stats, and you return exactly one trading
decision.

You may go LONG (BUY, later SELL) or SHORT (SELL_SHORT, later BUY_TO_COVER),
or HOLD. Capital preservation matters: low-conviction trades are worse than
no trade.`, agentName)
}

// buildDecisionPrompt строит пользовательский промпт с контекстом цикла
func buildDecisionPrompt(req DecisionRequest) (string, error) {
	marketJSON, err := json.MarshalIndent(req.Market, "", "  ")
	if err != nil {
		return "", err
	}
	positionsJSON, err := json.MarshalIndent(req.Positions, "", "  ")
	if err != nil {
		return "", err
	}
	assessmentJSON, err := json.MarshalIndent(req.Assessment, "", "  ")
	if err != nil {
		return "", err
	}
	statsJSON, err := json.MarshalIndent(req.Stats, "", "  ")
	if err != nil {
		return "", err
	}
	newsJSON, err := json.MarshalIndent(req.News, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`Make your trading decision for this cycle.

Time: %s
Cash balance: $%.2f
Account value: $%.2f

Market snapshot (with indicators):
%s

Market regime assessment:
%s

Your open positions:
%s

Your historical stats:
%s

News for big movers:
%s

Respond with pure JSON (no markdown):
{
  "action": "BUY|SELL|SELL_SHORT|BUY_TO_COVER|HOLD",
  "symbol": "AAPL",
  "quantity": 0,
  "confidence": 0.0-1.0,
  "reasoning": "why this trade, at least one sentence",
  "risk_assessment": "what can go wrong",
  "target_price": 0,
  "stop_loss": 0,
  "invalidation": "condition that invalidates the thesis"
}

Rules:
1. Exactly one decision per cycle.
2. For BUY set target_price above and stop_loss below the current price.
3. For SELL_SHORT set target_price below and stop_loss above the current price.
4. SELL and BUY_TO_COVER are only valid for symbols you hold.
5. quantity is advisory for shorts; long sizing is derived from confidence.
6. If nothing looks attractive, HOLD.`,
		time.Now().Format(time.RFC3339),
		req.CashBalance,
		req.AccountValue,
		string(marketJSON),
		string(assessmentJSON),
		string(positionsJSON),
		string(statsJSON),
		string(newsJSON),
	), nil
}
