package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/strategy"
)

// BotService is the create/start/stop flow on top of accounts and the fleet.
type BotService struct {
	accounts *AccountService
	store    *credentials.Store
	fleet    *FleetOrchestrator
	log      *slog.Logger
}

func NewBotService(accounts *AccountService, store *credentials.Store, fleet *FleetOrchestrator) *BotService {
	return &BotService{
		accounts: accounts,
		store:    store,
		fleet:    fleet,
		log:      logger.Component("bots"),
	}
}

// BotAccountID names the account that backs one owner's bot on one market and strategy.
func BotAccountID(owner, market, strategyName string) string {
	return fmt.Sprintf("robotter_%s_%s_%s", owner, market, strategyName)
}

// CreateBot provisions a dedicated account and wallet, saves the strategy config and launches
// the worker. If the worker cannot be created the account is rolled back so the call can be retried.
func (s *BotService) CreateBot(ctx context.Context, req model.CreateBotRequest) (*model.CreateBotResponse, error) {
	if strings.TrimSpace(req.Owner) == "" || strings.TrimSpace(req.Market) == "" {
		return nil, apperrors.NewInvalidRequest("owner and market are required")
	}
	params, err := strategy.Resolve(req.StrategyName, req.StrategyParameters)
	if err != nil {
		return nil, err
	}

	account := BotAccountID(req.Owner, req.Market, req.StrategyName)
	if err := s.accounts.AddAccount(ctx, account); err != nil {
		return nil, err
	}
	rollback := func(cause error) error {
		if err := s.accounts.DeleteAccount(context.Background(), account); err != nil {
			s.log.Error("failed to roll back bot account", "account", account, "error", err)
		}
		return cause
	}

	walletAddress, err := s.accounts.GenerateWallet(ctx, account)
	if err != nil {
		return nil, rollback(err)
	}
	cfg := model.BotConfig{
		StrategyName:  req.StrategyName,
		Parameters:    params,
		Market:        req.Market,
		WalletAddress: req.Owner,
	}
	if err := s.store.SaveBotConfig(account, cfg); err != nil {
		return nil, rollback(apperrors.New(apperrors.ErrInternal, "failed to save bot config", err))
	}

	instanceID, err := s.fleet.CreateWorker(ctx, model.WorkerConfig{
		InstanceName:       account,
		CredentialsProfile: account,
		Market:             req.Market,
	})
	if err != nil {
		return nil, rollback(err)
	}

	s.log.Info("bot created", "instance_id", instanceID, "strategy", req.StrategyName, "market", req.Market)
	return &model.CreateBotResponse{InstanceID: instanceID, WalletAddress: walletAddress, Market: req.Market}, nil
}

// StartBot starts the worker with the stored parameters, overridden by the request's.
func (s *BotService) StartBot(ctx context.Context, id string, overrides map[string]any) (*model.CommandResponse, error) {
	account := s.AccountOf(id)
	cfg, err := s.store.LoadBotConfig(account)
	if err != nil {
		return nil, err
	}
	params := make(map[string]any, len(cfg.Parameters)+len(overrides))
	for k, v := range cfg.Parameters {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}
	return s.fleet.StartWorker(ctx, id, params)
}

func (s *BotService) StopBot(ctx context.Context, id string) (*model.CommandResponse, error) {
	return s.fleet.StopWorker(ctx, id)
}

func (s *BotService) GetBotConfig(id string) (*model.BotConfig, error) {
	return s.store.LoadBotConfig(s.AccountOf(id))
}

// AccountOf maps a worker id back to the account that backs it.
func (s *BotService) AccountOf(id string) string {
	return strings.TrimPrefix(id, s.fleet.WorkerName(""))
}

// RemoveBot tears down the worker. The backing account and wallet are kept.
func (s *BotService) RemoveBot(ctx context.Context, id string, keepArchive bool) (string, error) {
	return s.fleet.RemoveWorker(ctx, id, keepArchive)
}

func (s *BotService) TradeHistory(ctx context.Context, id string) ([]model.TradeLog, error) {
	return s.fleet.WorkerHistory(ctx, id)
}

func (s *BotService) Status(id string) model.BotStatus {
	return s.fleet.GetBotStatus(id)
}

func (s *BotService) AllStatuses() map[string]model.BotStatus {
	return s.fleet.GetAllBotsStatus()
}
