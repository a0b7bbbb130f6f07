package metrics

import (
	"math"

	"github.com/kirillm/agent-arena/internal/domain"
)

// Report сводка производительности агента
type Report struct {
	AgentID            int64   `json:"agent_id"`
	AgentName          string  `json:"agent_name"`
	AccountValue       float64 `json:"account_value"`
	ROIPercent         float64 `json:"roi_percent"`
	SharpeLike         float64 `json:"sharpe_like"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	TotalTrades        int     `json:"total_trades"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	WinRate            float64 `json:"win_rate"`
}

// Compute строит отчет по временному ряду стоимости счета.
// SharpeLike — отношение среднего пошагового возврата к его
// стандартному отклонению (без annualization: циклы нерегулярны).
func Compute(agent domain.Agent, series []domain.PerformancePoint, wins, losses int) Report {
	report := Report{
		AgentID:      agent.ID,
		AgentName:    agent.Name,
		AccountValue: agent.AccountValue,
		Wins:         wins,
		Losses:       losses,
		TotalTrades:  wins + losses,
	}

	if agent.StartingValue > 0 {
		report.ROIPercent = (agent.AccountValue - agent.StartingValue) / agent.StartingValue * 100
	}
	if report.TotalTrades > 0 {
		report.WinRate = float64(wins) / float64(report.TotalTrades) * 100
	}

	returns := stepReturns(series)
	report.SharpeLike = sharpeLike(returns)
	report.MaxDrawdownPercent = maxDrawdown(series)

	return report
}

// stepReturns возвращает пошаговые относительные изменения ряда
func stepReturns(series []domain.PerformancePoint) []float64 {
	if len(series) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1].AccountValue
		if prev <= 0 {
			continue
		}
		returns = append(returns, (series[i].AccountValue-prev)/prev)
	}
	return returns
}

func sharpeLike(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stddev := math.Sqrt(variance / float64(len(returns)-1))
	if stddev == 0 {
		return 0
	}

	return mean / stddev
}

// maxDrawdown максимальная просадка от пика в процентах (>= 0)
func maxDrawdown(series []domain.PerformancePoint) float64 {
	var peak, worst float64
	for _, p := range series {
		if p.AccountValue > peak {
			peak = p.AccountValue
		}
		if peak > 0 {
			drawdown := (peak - p.AccountValue) / peak * 100
			if drawdown > worst {
				worst = drawdown
			}
		}
	}
	return worst
}
