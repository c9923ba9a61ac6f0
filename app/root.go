// Package app assembles the chaincore daemon: configuration, the chain
// submission pipeline, registry client, and webhook delivery engine.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hashproof/chaincore/internal/certify"
	"github.com/hashproof/chaincore/internal/chain"
	"github.com/hashproof/chaincore/internal/config"
	"github.com/hashproof/chaincore/internal/registry"
	"github.com/hashproof/chaincore/internal/submit"
	"github.com/hashproof/chaincore/internal/webhook"
)

var version = "dev"

// RootCmd builds the chaincored command tree.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chaincored",
		Short: "certification chain submission and webhook delivery daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the chaincored version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})
	return cmd
}

func run(ctx context.Context) error {
	logger := zap.L()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	svc, err := Build(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc.Chain.Queue().Start(ctx)
	if err := svc.Sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start webhook sweeper: %w", err)
	}
	svc.Registry.EnqueueRegisterAgent("")
	logger.Info("chaincored started",
		zap.String("network", cfg.Network),
		zap.Bool("simulation", cfg.SimulationMode()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	svc.Sweeper.Stop()
	svc.Chain.Queue().Stop()
	svc.Hooks.Wait()
	return nil
}

// Services groups the wired subsystem components.
type Services struct {
	Chain    *submit.Service
	Registry *registry.Client
	Hooks    *webhook.Engine
	Sweeper  *webhook.Sweeper
	Certify  *certify.Service
	Store    *certify.MemoryStore
}

// Build wires every component from configuration. Missing credentials are
// tolerated: the chain client runs simulated and registry jobs are skipped.
func Build(cfg *config.Config, logger *zap.Logger) (*Services, error) {
	var key *chain.SigningKey
	if cfg.SigningKey != "" {
		parsed, err := chain.ParseSigningKey(cfg.SigningKey, cfg.AddressHRP)
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		key = parsed
	}

	client := chain.NewGatewayClient(chain.ClientParams{
		GatewayURL: cfg.GatewayURL,
		APIURL:     cfg.APIURL,
		Key:        key,
		Logger:     logger,
	})

	builder := chain.NewBuilder(cfg.ChainID, cfg.GasPrice, chain.GasPolicy{
		BaseCost:    cfg.GasBaseCost,
		PerByteCost: cfg.GasPerByteCost,
	})

	chainSvc := submit.NewService(builder, client, cfg.SenderAddress, logger)

	registryClient := registry.NewClient(chainSvc, client, registry.Contracts{
		Agent:      cfg.AgentRegistry,
		Proof:      cfg.ProofRegistry,
		Validation: cfg.ValidationRegistry,
	}, cfg.DefaultAgentID, logger)

	store := certify.NewMemoryStore()
	hooks := webhook.NewEngine(webhook.EngineParams{
		Store:          store,
		FallbackSecret: cfg.WebhookFallbackSecret,
		MaxAttempts:    cfg.WebhookMaxAttempts,
		AttemptTimeout: cfg.WebhookTimeout,
		Logger:         logger,
	})
	sweeper := webhook.NewSweeper(hooks, store, cfg.WebhookSweepInterval, logger)

	certifySvc := certify.NewService(certify.Params{
		Store:         store,
		Chain:         chainSvc,
		Registry:      registryClient,
		Hooks:         hooks,
		Network:       cfg.Network,
		VerifyBaseURL: cfg.VerifyBaseURL,
		ExplorerTxURL: cfg.ExplorerTxURL,
		Receiver:      cfg.DefaultReceiver,
		Logger:        logger,
	})

	return &Services{
		Chain:    chainSvc,
		Registry: registryClient,
		Hooks:    hooks,
		Sweeper:  sweeper,
		Certify:  certifySvc,
		Store:    store,
	}, nil
}
