package manager

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// AgentSpec запись ростера в YAML
type AgentSpec struct {
	Name         string  `yaml:"name"`
	Model        string  `yaml:"model"`
	StartingCash float64 `yaml:"starting_cash"`
	BrokerTag    string  `yaml:"broker_tag"`
}

// Roster доступ к агентам для сидинга
type Roster interface {
	AgentByName(ctx context.Context, name string) (*domain.Agent, error)
	CreateAgent(ctx context.Context, agent *domain.Agent) error
}

// AgentManager создает агентов из декларативного ростера.
// Сидинг идемпотентен: существующие агенты не трогаются — их балансы
// это живое состояние арены, перезапись уничтожила бы историю.
type AgentManager struct {
	roster Roster
	logger *utils.Logger
}

// NewAgentManager создает agent manager
func NewAgentManager(roster Roster, logger *utils.Logger) *AgentManager {
	return &AgentManager{roster: roster, logger: logger.WithPrefix("agents")}
}

// LoadRoster читает ростер агентов из YAML
func LoadRoster(path string) ([]AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents roster: %w", err)
	}

	var config struct {
		Agents []AgentSpec `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse agents roster: %w", err)
	}

	if len(config.Agents) == 0 {
		return nil, fmt.Errorf("agents roster is empty")
	}
	for i, spec := range config.Agents {
		if spec.Name == "" || spec.Model == "" {
			return nil, fmt.Errorf("agent #%d: name and model are required", i+1)
		}
		if spec.StartingCash <= 0 {
			return nil, fmt.Errorf("agent %s: starting_cash must be positive", spec.Name)
		}
	}

	return config.Agents, nil
}

// Seed создает отсутствующих агентов из ростера.
// Возвращает количество созданных.
func (am *AgentManager) Seed(ctx context.Context, specs []AgentSpec) (int, error) {
	created := 0
	for _, spec := range specs {
		existing, err := am.roster.AgentByName(ctx, spec.Name)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return created, fmt.Errorf("lookup agent %s: %w", spec.Name, err)
		}
		if existing != nil {
			am.logger.Debug("Agent %s already exists, skipping", spec.Name)
			continue
		}

		brokerTag := spec.BrokerTag
		if brokerTag == "" {
			brokerTag = "simulated"
		}

		agent := &domain.Agent{
			Name:          spec.Name,
			ModelLabel:    spec.Model,
			CashBalance:   spec.StartingCash,
			AccountValue:  spec.StartingCash,
			StartingValue: spec.StartingCash,
			BrokerTag:     brokerTag,
		}
		if err := am.roster.CreateAgent(ctx, agent); err != nil {
			return created, fmt.Errorf("create agent %s: %w", spec.Name, err)
		}

		am.logger.Info("🤖 Agent %s created (model=%s, cash=$%.2f)", spec.Name, spec.Model, spec.StartingCash)
		created++
	}
	return created, nil
}
