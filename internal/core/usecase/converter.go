package usecase

import (
	"context"
	"fmt"

	"github.com/Nzyazin/ratecache/internal/core/conversion"
	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/models"
	"github.com/Nzyazin/ratecache/internal/core/registry"
)

type ConversionUsecase interface {
	Convert(ctx context.Context, req models.ConversionRequest) (models.ConversionResult, error)
	Currencies() []models.CurrencyInfo
	Snapshot(ctx context.Context) (models.CachedRates, models.CacheState, error)
	Status() models.RatesStatus
	Refresh(ctx context.Context) (models.RatesStatus, error)
}

type conversionUsecase struct {
	registry    *registry.Registry
	coordinator *RateCoordinator
	log         logger.Logger
}

func NewConversionUsecase(reg *registry.Registry, coordinator *RateCoordinator, log logger.Logger) ConversionUsecase {
	return &conversionUsecase{
		registry:    reg,
		coordinator: coordinator,
		log:         log,
	}
}

func (uc *conversionUsecase) Convert(ctx context.Context, req models.ConversionRequest) (models.ConversionResult, error) {
	if err := conversion.ValidateAmount(req.Amount); err != nil {
		return models.ConversionResult{}, err
	}

	if err := uc.lookup(req.From, req.To); err != nil {
		return models.ConversionResult{}, err
	}

	cached, state, err := uc.coordinator.Rates(ctx)
	if err != nil {
		uc.log.Error("No rates to convert with",
			logger.StringField("from", req.From.String()),
			logger.StringField("to", req.To.String()),
			logger.ErrorField("error", err))
		return models.ConversionResult{}, err
	}

	rate, err := conversion.CrossRate(cached.Table, req.From, req.To)
	if err != nil {
		uc.log.Warn("No usable cross rate",
			logger.StringField("from", req.From.String()),
			logger.StringField("to", req.To.String()),
			logger.TimeField("fetched_at", cached.FetchedAt),
			logger.ErrorField("error", err))
		return models.ConversionResult{}, err
	}

	converted, err := conversion.Convert(cached.Table, req.From, req.To, req.Amount)
	if err != nil {
		return models.ConversionResult{}, err
	}

	return models.ConversionResult{
		Request:   req,
		Converted: converted,
		Rate:      rate,
		Base:      cached.Base,
		FetchedAt: cached.FetchedAt,
		Stale:     state != models.StateFresh,
	}, nil
}

func (uc *conversionUsecase) lookup(codes ...models.CurrencyCode) error {
	for _, code := range codes {
		if _, err := uc.registry.Lookup(code); err != nil {
			uc.log.Warn("Unknown currency requested", logger.StringField("code", code.String()))
			return err
		}
	}
	return nil
}

func (uc *conversionUsecase) Currencies() []models.CurrencyInfo {
	return uc.registry.ListAll()
}

func (uc *conversionUsecase) Snapshot(ctx context.Context) (models.CachedRates, models.CacheState, error) {
	return uc.coordinator.Rates(ctx)
}

func (uc *conversionUsecase) Status() models.RatesStatus {
	return uc.coordinator.Status()
}

func (uc *conversionUsecase) Refresh(ctx context.Context) (models.RatesStatus, error) {
	if err := uc.coordinator.Refresh(ctx); err != nil {
		return uc.coordinator.Status(), fmt.Errorf("refresh rates: %w", err)
	}
	return uc.coordinator.Status(), nil
}
