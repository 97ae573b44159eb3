package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/config"
	"github.com/example/floradispatch/internal/repositories"
	"github.com/example/floradispatch/internal/utils"
)

// Deps bundles the collaborators shared by the dispatch services.
type Deps struct {
	Repo      repositories.Repository
	Config    config.DispatchConfig
	Locks     *utils.KeyedMutex
	Publisher EventPublisher
	Metrics   *Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// NewDeps fills in everything but the repository with working defaults.
func NewDeps(repo repositories.Repository, cfg config.DispatchConfig) Deps {
	return Deps{
		Repo:      repo,
		Config:    cfg,
		Locks:     utils.NewKeyedMutex(),
		Publisher: discardPublisher{},
		Metrics:   NewMetrics(),
		Logger:    zap.NewNop(),
		Now:       time.Now,
	}
}

func (d Deps) calculator() CommissionCalculator {
	return NewCommissionCalculator(d.Config.DefaultCommissionRate)
}

func (d Deps) loader() *OrderLoader {
	return NewOrderLoader(NewNormalizer(d.calculator()))
}

func (d Deps) now() time.Time {
	return d.Now().UTC()
}
