package roundengine

import (
	"log/slog"

	"phraseforge/contexts/gameplay/round-engine/adapters/memory"
	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/application/commands"
	"phraseforge/contexts/gameplay/round-engine/application/matchmaking"
	"phraseforge/contexts/gameplay/round-engine/application/workers"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

type Module struct {
	Rounds  commands.RoundUseCase
	Matcher matchmaking.Coordinator
	Sweep   workers.TimeoutSweepJob
	Relay   workers.OutboxRelay
	Queue   ports.Queue
	Store   *memory.Store
}

type Dependencies struct {
	Rounds     ports.RoundRepository
	Phrasesets ports.PhrasesetRepository
	Players    ports.PlayerRepository
	Prompts    ports.PromptCatalog
	Cooldowns  ports.CooldownStore
	Queue      ports.Queue
	Locks      ports.LockManager
	Validator  ports.PhraseValidator
	Wallet     ports.TransactionService
	Outbox     ports.OutboxWriter
	OutboxRepo ports.OutboxRepository
	Publisher  ports.EventPublisher
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Rules      application.Rules
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	matcher := matchmaking.Coordinator{
		Rounds:     deps.Rounds,
		Phrasesets: deps.Phrasesets,
		Cooldowns:  deps.Cooldowns,
		Queue:      deps.Queue,
		Locks:      deps.Locks,
		Clock:      deps.Clock,
		Rules:      deps.Rules,
		Logger:     deps.Logger,
	}
	roundUseCase := commands.RoundUseCase{
		Rounds:     deps.Rounds,
		Phrasesets: deps.Phrasesets,
		Players:    deps.Players,
		Prompts:    deps.Prompts,
		Cooldowns:  deps.Cooldowns,
		Queue:      deps.Queue,
		Locks:      deps.Locks,
		Validator:  deps.Validator,
		Wallet:     deps.Wallet,
		Outbox:     deps.Outbox,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Matcher:    matcher,
		Rules:      deps.Rules,
		Logger:     deps.Logger,
	}
	module := Module{
		Rounds:  roundUseCase,
		Matcher: matcher,
		Queue:   deps.Queue,
		Sweep: workers.TimeoutSweepJob{
			Rounds:    deps.Rounds,
			UseCase:   roundUseCase,
			Clock:     deps.Clock,
			BatchSize: deps.Rules.SweepBatchSize,
			Logger:    deps.Logger,
		},
	}
	if deps.OutboxRepo != nil && deps.Publisher != nil {
		module.Relay = workers.OutboxRelay{
			Outbox:    deps.OutboxRepo,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.Rules.SweepBatchSize,
			Logger:    deps.Logger,
		}
	}
	return module
}

// DefaultValidator is the structural phrase validator used when no external
// moderation capability is configured.
func DefaultValidator() ports.PhraseValidator {
	return memory.NewPhraseValidator()
}

// NewInMemoryModule wires the module against the in-process adapters. Used
// by tests and by local single-node runs.
func NewInMemoryModule(rules application.Rules, logger *slog.Logger) Module {
	store := memory.NewStore()
	store.SetCooldownWindow(rules.CooldownWindow)
	module := NewModule(Dependencies{
		Rounds:     store,
		Phrasesets: store,
		Players:    store,
		Prompts:    store,
		Cooldowns:  store,
		Queue:      memory.NewQueue(),
		Locks:      memory.NewLockManager(),
		Validator:  memory.NewPhraseValidator(),
		Wallet:     store,
		Outbox:     store,
		OutboxRepo: store,
		Clock:      store,
		IDGen:      store,
		Rules:      rules,
		Logger:     logger,
	})
	module.Store = store
	return module
}
