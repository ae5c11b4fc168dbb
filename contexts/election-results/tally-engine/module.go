package tallyengine

import (
	"log/slog"

	httpadapter "tallyhub/contexts/election-results/tally-engine/adapters/http"
	"tallyhub/contexts/election-results/tally-engine/adapters/memory"
	"tallyhub/contexts/election-results/tally-engine/application/commands"
	"tallyhub/contexts/election-results/tally-engine/application/queries"
	"tallyhub/contexts/election-results/tally-engine/domain/entities"
	"tallyhub/contexts/election-results/tally-engine/domain/services"
	"tallyhub/contexts/election-results/tally-engine/ports"
)

type Module struct {
	Handler   httpadapter.Handler
	Store     *memory.Store
	Locations *memory.LocationRegistry
	Cache     *memory.AggregateCache
}

type Dependencies struct {
	Submissions ports.SubmissionRepository
	Locations   ports.LocationRegistry
	// Cache and Evidence are optional.
	Cache             ports.AggregateCache
	Evidence          ports.EvidenceStore
	Clock             ports.Clock
	IDGen             ports.IDGenerator
	Thresholds        services.AnomalyThresholds
	ValidationPenalty int
	Logger            *slog.Logger
}

func NewModule(deps Dependencies) Module {
	submit := commands.SubmitTallyUseCase{
		Repository:        deps.Submissions,
		Locations:         deps.Locations,
		Evidence:          deps.Evidence,
		Clock:             deps.Clock,
		IDGen:             deps.IDGen,
		Thresholds:        deps.Thresholds,
		ValidationPenalty: deps.ValidationPenalty,
		Logger:            deps.Logger,
	}
	review := commands.ReviewSubmissionUseCase{
		Repository: deps.Submissions,
		Locations:  deps.Locations,
		Cache:      deps.Cache,
		Clock:      deps.Clock,
		IDGen:      deps.IDGen,
		Logger:     deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Submit:      submit,
			Review:      review,
			Submissions: queries.SubmissionQueryUseCase{Repository: deps.Submissions},
			Queue:       queries.ReviewQueueUseCase{Repository: deps.Submissions, Logger: deps.Logger},
			Aggregates: queries.AggregateUseCase{
				Repository: deps.Submissions,
				Locations:  deps.Locations,
				Cache:      deps.Cache,
				Logger:     deps.Logger,
			},
			Logger: deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to process-local adapters. Photo
// evidence references are recorded without an existence check.
func NewInMemoryModule(locations []entities.Location, seed []entities.Submission, logger *slog.Logger) (Module, error) {
	registry, err := memory.NewLocationRegistry(locations)
	if err != nil {
		return Module{}, err
	}
	store := memory.NewStore(seed)
	cache := memory.NewAggregateCache()
	module := NewModule(Dependencies{
		Submissions: store,
		Locations:   registry,
		Cache:       cache,
		Clock:       store,
		IDGen:       store,
		Thresholds:  services.DefaultAnomalyThresholds(),
		Logger:      logger,
	})
	module.Store = store
	module.Locations = registry
	module.Cache = cache
	return module, nil
}
