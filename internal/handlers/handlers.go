package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/services"
)

type Handlers struct {
	Auth     *AuthHandler
	Health   *HealthHandler
	Match    *MatchHandler
	Feedback *FeedbackHandler
	Job      *JobHandler
	Weight   *WeightHandler
}

func New(logger *logrus.Logger, svcs *services.Services) *Handlers {
	return &Handlers{
		Auth:     NewAuthHandler(logger, svcs.Auth),
		Health:   NewHealthHandler(logger, svcs.Health),
		Match:    NewMatchHandler(svcs.Orchestrator, svcs.Matches, svcs.JobTracker, logger),
		Feedback: NewFeedbackHandler(logger, svcs.Ledger),
		Job:      NewJobHandler(logger, svcs.JobTracker),
		Weight:   NewWeightHandler(logger, svcs.Weights),
	}
}
