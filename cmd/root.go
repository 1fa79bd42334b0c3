package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/OnSocial-Labs/onsocial-relayer/internal/relayer"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/api"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/db"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/events"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/host"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/openobserve"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	environment string
	configPath  string
	rootCmd     = &cobra.Command{
		Use:   "relayer",
		Short: "OnSocial meta-transaction relayer",
		Run:   run,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) {
	// Initialize logger with defaults until the config is loaded
	config.InitLogger()
	if err := config.Load(environment); err != nil {
		panic("Failed to load config: " + err.Error())
	}
	cfg := config.GlobalConfig
	config.InitLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := openobserve.Init(ctx, cfg.OpenObserve)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	dbAdapter, err := db.NewDatabaseAdapter(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database adapter")
	}

	sinks := []events.Sink{events.LogSink{}}
	if dbAdapter.MongoDatabase != nil {
		sinks = append(sinks, events.NewMongoSink(dbAdapter.MongoDatabase, cfg.Database.MongoCollection))
	}
	eventBus := events.NewEventBus(&cfg.EventBus, sinks...)

	localHost, err := newLocalHost(&cfg.Host, &cfg.Relayer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create execution host")
	}

	service, err := relayer.NewService(&cfg.Relayer, dbAdapter.Store(), localHost, eventBus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create relayer service")
	}
	localHost.SetHandler(service)

	if err := localHost.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start execution host")
	}
	if err := service.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start relayer service")
	}
	server := api.NewServer(&cfg.Server, service)
	server.Start()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down relayer...")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown http server")
	}
	service.Stop()
	localHost.Stop()
	cancel()
	eventBus.Close()
	dbAdapter.Close(context.Background())
	if err := shutdownTracing(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}
}

// newLocalHost builds the in-process substrate with the collaborator contracts the
// relayer talks to: the payment token, the auth service and one MPC signer per mapped
// chain.
func newLocalHost(hostCfg *config.HostConfig, relayerCfg *config.RelayerConfig) (*host.LocalHost, error) {
	localHost := host.NewLocalHost(hostCfg.StartHeight, hostCfg.BlockInterval)
	for account, amount := range hostCfg.NativeBalances {
		balance, err := types.ParseBalance(amount)
		if err != nil {
			return nil, fmt.Errorf("host.native_balances.%s: %w", account, err)
		}
		localHost.Credit(types.AccountID(account), balance)
	}
	if relayerCfg.PaymentFTContract != "" {
		balances := make(map[types.AccountID]*types.Balance, len(hostCfg.FTBalances))
		for account, amount := range hostCfg.FTBalances {
			balance, err := types.ParseBalance(amount)
			if err != nil {
				return nil, fmt.Errorf("host.ft_balances.%s: %w", account, err)
			}
			balances[types.AccountID(account)] = balance
		}
		localHost.Deploy(types.AccountID(relayerCfg.PaymentFTContract), host.NewFTContract(balances))
	}
	if relayerCfg.AuthContract != "" {
		localHost.Deploy(types.AccountID(relayerCfg.AuthContract), host.NewAuthContract(types.AccountID(relayerCfg.RelayerAccount)))
	}
	if len(relayerCfg.ChainMpcMapping) > 0 {
		root, err := mpcRootKey(hostCfg.MpcRootKey)
		if err != nil {
			return nil, err
		}
		for chain, signer := range relayerCfg.ChainMpcMapping {
			log.Info().Str("chain", chain).Str("signer", signer).Msg("[Relayer] [newLocalHost] deploy local MPC signer")
			localHost.Deploy(types.AccountID(signer), host.NewMPCContract(root, 0))
		}
	}
	return localHost, nil
}

func mpcRootKey(encoded string) ([]byte, error) {
	if encoded != "" {
		root, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("host.mpc_root_key: %w", err)
		}
		return root, nil
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	log.Warn().Msg("[Relayer] [newLocalHost] no MPC root key configured, using an ephemeral key")
	return crypto.FromECDSA(key), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&environment,
		"env",
		"local",
		"Environment name of the configuration file",
	)
	rootCmd.PersistentFlags().StringVar(
		&configPath,
		"config-path",
		"data/config",
		"Directory holding the <env>.json configuration files",
	)
	viper.BindPFlag("env", rootCmd.PersistentFlags().Lookup("env"))
	viper.BindPFlag("config_path", rootCmd.PersistentFlags().Lookup("config-path"))
}
