package telegram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/metrics"
)

// Formatter форматирует ответы бота
type Formatter struct{}

// NewFormatter создает форматтер
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Leaderboard форматирует таблицу лидеров по ROI
func (f *Formatter) Leaderboard(reports []metrics.Report) string {
	if len(reports) == 0 {
		return "📊 No agents yet"
	}

	sorted := make([]metrics.Report, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ROIPercent > sorted[j].ROIPercent
	})

	var sb strings.Builder
	sb.WriteString("🏆 *Leaderboard*\n\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, r := range sorted {
		prefix := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			prefix = medals[i]
		}
		sb.WriteString(fmt.Sprintf("%s *%s*: $%.2f (%+.2f%%)\n", prefix, r.AgentName, r.AccountValue, r.ROIPercent))
		sb.WriteString(fmt.Sprintf("    trades: %d, win rate: %.0f%%, max DD: %.1f%%\n",
			r.TotalTrades, r.WinRate, r.MaxDrawdownPercent))
	}
	return sb.String()
}

// Positions форматирует открытые позиции агента
func (f *Formatter) Positions(agent domain.Agent, positions []domain.Position) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("💼 *%s* — cash $%.2f, total $%.2f\n", agent.Name, agent.CashBalance, agent.AccountValue))

	if len(positions) == 0 {
		sb.WriteString("No open positions\n")
		return sb.String()
	}

	for i := range positions {
		p := &positions[i]
		emoji := "🟢"
		if p.UnrealizedPnL() < 0 {
			emoji = "🔴"
		}
		sb.WriteString(fmt.Sprintf("%s %s %s %.0f @ $%.2f → $%.2f (%+.2f%%)\n",
			emoji, p.Side, p.Symbol, p.Quantity, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnLPercent()))
	}
	return sb.String()
}

// Trades форматирует последние сделки
func (f *Formatter) Trades(trades []domain.Trade, names map[int64]string) string {
	if len(trades) == 0 {
		return "📜 No trades yet"
	}

	var sb strings.Builder
	sb.WriteString("📜 *Recent trades*\n\n")
	for i := range trades {
		t := &trades[i]
		name := names[t.AgentID]
		status := "✅"
		if !t.Success {
			status = "❌"
		}
		line := fmt.Sprintf("%s %s %s %.0f %s @ $%.2f", status, name, t.Action, t.Quantity, t.Symbol, t.Price)
		if t.RealizedPnL != nil {
			line += fmt.Sprintf(" (P&L %+.2f)", *t.RealizedPnL)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// HaltStatus форматирует состояние halt switch
func (f *Formatter) HaltStatus(active bool, reason string) string {
	if active {
		return fmt.Sprintf("🛑 Trading HALTED: %s", reason)
	}
	return "▶️ Trading active"
}
