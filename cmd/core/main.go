// Command core is the arbitrage detection and execution process: it
// loads the static chain/DEX topology, wires ingestion, the event bus,
// detection, risk, and execution, then runs until signaled to stop.
package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/blackhole-arb/arbcore/internal/bus"
	"github.com/blackhole-arb/arbcore/internal/cache"
	"github.com/blackhole-arb/arbcore/internal/chainadapter"
	"github.com/blackhole-arb/arbcore/internal/config"
	"github.com/blackhole-arb/arbcore/internal/db"
	"github.com/blackhole-arb/arbcore/internal/detector"
	"github.com/blackhole-arb/arbcore/internal/execution"
	"github.com/blackhole-arb/arbcore/internal/health"
	"github.com/blackhole-arb/arbcore/internal/ingestion"
	"github.com/blackhole-arb/arbcore/internal/logging"
	"github.com/blackhole-arb/arbcore/internal/risk"
	"github.com/blackhole-arb/arbcore/internal/scheduler"
	"github.com/blackhole-arb/arbcore/internal/types"
	"github.com/blackhole-arb/arbcore/pkg/contractclient"
	"github.com/blackhole-arb/arbcore/pkg/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the chain/DEX topology YAML file")
	envPath := flag.String("env", ".env", "path to the secrets/tunables env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "core: failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel}, "core")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("core: fatal startup error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(log)

	messageBus := bus.New(cfg.RedisAddr, logging.New(logging.Config{Level: cfg.LogLevel}, "bus"))
	defer messageBus.Close()

	var recorder *db.AuditRecorder
	if cfg.MysqlDSN != "" {
		var err error
		recorder, err = db.NewAuditRecorder(cfg.MysqlDSN)
		if err != nil {
			return fmt.Errorf("connect audit recorder: %w", err)
		}
		defer recorder.Close()
	}

	gasOracle := newRPCGasOracle(cfg.Chains, log)
	gasPrices := cache.NewGasPriceCache(gasOracle, 60*time.Second, logging.New(logging.Config{Level: cfg.LogLevel}, "gascache"))
	chainIDs := make([]string, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chainIDs = append(chainIDs, c.ChainID)
	}
	if err := gasPrices.Start(ctx, sched, chainIDs); err != nil {
		return fmt.Errorf("start gas price cache: %w", err)
	}

	ethClients := make(map[string]*ethclient.Client, len(cfg.Chains))
	for _, c := range cfg.Chains {
		if c.RPCURL == "" {
			continue
		}
		client, err := ethclient.DialContext(ctx, c.RPCURL)
		if err != nil {
			log.Error().Err(err).Str("chain", c.ChainID).Msg("failed to dial chain RPC, chain's execution path stays disabled")
			continue
		}
		ethClients[c.ChainID] = client
	}

	gasUnits := make(map[string]uint64, len(cfg.Chains))
	for _, c := range cfg.Chains {
		gasUnits[c.ChainID] = c.GasEstimateUnit
	}
	gasEstimator := chainadapter.NewGasEstimator(gasPrices, gasUnits)

	nonceClient := chainadapter.NewNonceClient(ethClients)
	nonceManager := execution.NewNonceManager(execution.NonceManagerConfig{
		PoolSize:           cfg.Nonce.PoolSize,
		ReplenishThreshold: cfg.Nonce.ReplenishThreshold,
		SyncInterval:       cfg.Nonce.NonceSyncInterval(),
		PendingTimeout:     cfg.Nonce.PendingTimeout(),
	}, nonceClient)
	if err := sched.AddJob("@every 1m", scheduler.FuncJob{
		JobName: "nonce-sweep",
		Fn: func() error {
			nonceManager.SweepExpired(time.Now())
			return nil
		},
	}); err != nil {
		return fmt.Errorf("register nonce sweep job: %w", err)
	}

	simProviders := make([]execution.SimProvider, 0, len(ethClients))
	chainSimProviders := make(map[string]*chainadapter.EthCallSimProvider, len(ethClients))
	submissionChannels := make(map[string][]execution.SubmissionChannel, len(ethClients))
	for chainID, client := range ethClients {
		ethCallSim := chainadapter.NewEthCallSimProvider(chainID, client)
		simProviders = append(simProviders, ethCallSim)
		chainSimProviders[chainID] = ethCallSim
		submissionChannels[chainID] = []execution.SubmissionChannel{chainadapter.NewPublicMempoolChannel(chainID, client)}
	}
	simulationService := execution.NewSimulationService(simProviders, 0)
	mevProvider := execution.NewMevProvider(submissionChannels, nil)

	circuitBreakers := execution.NewCircuitBreakerManager(execution.CircuitBreakerManagerConfig{}, types.SystemClock, func(evt execution.CircuitBreakerEvent) {
		log.Warn().Str("chain", evt.Chain).Str("from", evt.From.String()).Str("to", evt.To.String()).Str("reason", evt.Reason).Msg("circuit breaker transition")
		if recorder != nil {
			_ = recorder.RecordDeadLetter(bus.StreamCircuitBreaker, evt.Reason, fmt.Sprintf("%s:%s->%s", evt.Chain, evt.From, evt.To))
		}
	})

	drawdownBreaker := risk.NewDrawdownCircuitBreaker(risk.DrawdownCircuitBreakerConfig{TotalCapital: cfg.Risk.TotalCapital}, types.SystemClock)
	evCalculator := risk.NewEVCalculator(cfg.Risk.MinEvThreshold)
	kellySizer := risk.NewKellyPositionSizer(risk.KellyPositionSizerConfig{
		KellyMultiplier:        cfg.Risk.KellyMultiplier,
		MaxSingleTradeFraction: cfg.Risk.MaxSingleTradeFraction,
		MinTradeFraction:       cfg.Risk.MinTradeFraction,
	})
	probabilityTracker := risk.NewExecutionProbabilityTracker(50_000, 7*24*time.Hour, 10)

	strategies := buildStrategies(cfg, gasPrices, log)
	router := execution.NewStrategyRouter(strategies...)

	engine := execution.NewEngine(
		execution.EngineConfig{GasBucketWidthUsd: 5},
		logging.New(logging.Config{Level: cfg.LogLevel}, "engine"),
		circuitBreakers,
		drawdownBreaker,
		evCalculator,
		kellySizer,
		probabilityTracker,
		probabilityTracker,
		router,
		simulationService,
		nonceManager,
		mevProvider,
		types.SystemClock,
	)

	priceData := detector.NewPriceDataManager(500, 2*time.Minute, types.SystemClock)
	bridgeEstimator := detector.NewStaticBridgeCostEstimator()
	whaleTracker := detector.NewSwapWhaleTracker(detector.WhaleTrackerConfig{})
	preValidation := detector.NewPreValidationOrchestrator(
		detector.PreValidationOrchestratorConfig{},
		chainadapter.NewCrossChainSimProvider(chainSimProviders),
		types.SystemClock,
		logging.New(logging.Config{Level: cfg.LogLevel}, "prevalidation"),
	)
	// No ML prediction service is wired: this core has no model-serving
	// client in its dependency set, and fabricating one would just be a
	// nil-returning stub. computeConfidence degrades to its
	// ml==nil base-confidence path until a real predictor exists.
	crossChainDetector := detector.NewCrossChainDetector(
		detector.CrossChainDetectorConfig{
			MinProfitUsd:  50,
			MinConfidence: 0.6,
			ExpiryMs:      30_000,
			MLTimeout:     50 * time.Millisecond,
			DedupeWindow:  10 * time.Second,
			NotionalUsd:   10_000,
		},
		priceData, nil, whaleTracker, bridgeEstimator, preValidation, types.SystemClock,
		logging.New(logging.Config{Level: cfg.LogLevel}, "crosschain-detector"),
	)

	wsManagers := make([]*ingestion.WebSocketManager, 0, len(cfg.Chains))

	for _, c := range cfg.Chains {
		chainLog := logging.New(logging.Config{Level: cfg.LogLevel}, "chain-"+c.ChainID)

		chainDetector := detector.NewChainDetector(detector.ChainDetectorConfig{
			ChainID:      c.ChainID,
			MinProfitUsd: c.MinProfitUsd,
			MinProfitPct: c.MinProfitPct,
			Confidence:   c.Confidence,
			ExpiryMs:     c.ExpiryMs,
		}, gasEstimator, types.SystemClock, chainLog)

		pairTokens := ingestion.NewStaticPairTokenLookup()
		for _, p := range c.Pairs {
			pairTokens.Register(p.Address, ingestion.PairTokens{
				Token0: p.Token0, Token1: p.Token1,
				Decimals0: p.Decimals0, Decimals1: p.Decimals1,
				Symbol0: p.Symbol0, Symbol1: p.Symbol1,
			})
			chainDetector.RegisterPair(types.NewTokenPair(
				c.ChainID, p.DexName,
				common.HexToAddress(p.Address), common.HexToAddress(p.Token0), common.HexToAddress(p.Token1),
				p.Decimals0, p.Decimals1,
			))
		}

		decoder := ingestion.NewEventDecoder(c.ChainID, "uniswap_v2", pairTokens)
		c := c // capture for the closure below

		endpoints := append([]string{c.PrimaryWSURL}, c.FallbackWSURLs...)
		staleness := time.Duration(c.StalenessMs) * time.Millisecond

		wsManager := ingestion.NewWebSocketManager(c.ChainID, endpoints, staleness, types.SystemClock, chainLog, func(raw ingestion.RawMessage) {
			handleRawMessage(ctx, raw, decoder, chainDetector, priceData, whaleTracker, messageBus, recorder, c, chainLog)
		})

		topics := make([]ingestion.SubscriptionTopic, 0, len(c.Pairs))
		for _, p := range c.Pairs {
			topics = append(topics, ingestion.SubscriptionTopic{
				Name:    p.Address,
				Address: p.Address,
				Topics:  []string{ingestion.TopicSync, ingestion.TopicSwap},
			})
		}
		wsManager.SetTopics(topics)
		wsManager.OnEvent(func(evt ingestion.WSEvent) { logWebSocketEvent(chainLog, evt) })

		wsManagers = append(wsManagers, wsManager)
	}

	if err := sched.AddJob("@every 2s", scheduler.FuncJob{
		JobName: "cross-chain-scan",
		Fn: func() error {
			opportunities := crossChainDetector.Scan(ctx)
			for _, opp := range opportunities {
				publishOpportunity(ctx, messageBus, recorder, opp)
			}
			return nil
		},
	}); err != nil {
		return fmt.Errorf("register cross-chain scan job: %w", err)
	}

	statusSource := &coreStatusSource{
		wsManagers:      wsManagers,
		circuitBreakers: circuitBreakers,
		drawdown:        drawdownBreaker,
		chainIDs:        chainIDs,
		stalenessMs:     chainStalenessByID(cfg.Chains),
	}
	healthServer := health.NewServer(statusSource, logging.New(logging.Config{Level: cfg.LogLevel}, "health"))
	httpServer := &http.Server{Addr: ":8090", Handler: healthServer.Handler()}

	var wg sync.WaitGroup
	for _, m := range wsManagers {
		wg.Add(1)
		go func(m *ingestion.WebSocketManager) {
			defer wg.Done()
			m.Run(ctx)
		}(m)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server stopped unexpectedly")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runExecutionConsumer(ctx, messageBus, engine, log)
	}()

	sched.Start()
	log.Info().Msg("core started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sched.Stop()
	wg.Wait()

	return nil
}

// logWebSocketEvent surfaces a WebSocketManager lifecycle event at the
// appropriate level; rateLimit/staleConnection/dataGap/recovery-partial
// all indicate a degraded-but-recovering chain, not an operator page.
func logWebSocketEvent(log zerolog.Logger, evt ingestion.WSEvent) {
	switch evt.Type {
	case ingestion.EventRateLimit:
		log.Warn().Str("provider", evt.Provider).Int64("cooldownMs", evt.CooldownMs).Msg("websocket provider rate-limited")
	case ingestion.EventStaleConnection:
		log.Warn().Str("provider", evt.Provider).Int64("lastMessageAgeMs", evt.LastMessageAgeMs).Msg("websocket subscription stale")
	case ingestion.EventDataGap:
		log.Warn().Uint64("fromBlock", evt.FromBlock).Uint64("toBlock", evt.ToBlock).Msg("data gap detected across reconnect")
	case ingestion.EventSubscriptionRecoveryPartial:
		log.Warn().Strs("failedTopics", evt.FailedTopics).Msg("partial subscription recovery")
	case ingestion.EventReconnected:
		log.Info().Str("provider", evt.Provider).Msg("websocket reconnected")
	case ingestion.EventSubscribed:
		log.Info().Str("provider", evt.Provider).Msg("websocket subscribed")
	}
}

// handleRawMessage decodes an inbound websocket frame, forwards a
// resulting reserve update to the price matrix and bus, and runs it
// through the chain's same-chain detector and whale tracker.
func handleRawMessage(ctx context.Context, raw ingestion.RawMessage, decoder *ingestion.EventDecoder, chainDetector *detector.ChainDetector, priceData *detector.PriceDataManager, whaleTracker *detector.SwapWhaleTracker, messageBus *bus.Bus, recorder *db.AuditRecorder, chainCfg config.ChainConfig, log zerolog.Logger) {
	if update, ok, err := decoder.DecodeSync(raw); err != nil {
		log.Warn().Err(err).Msg("failed to decode sync event")
	} else if ok {
		mid := util.MidPrice(bigFromDecimalString(update.Reserve0), bigFromDecimalString(update.Reserve1), 18, 18)
		decimals1 := uint8(18)
		if tokens, ok := decoder.TokensForPair(update.PairAddress); ok {
			decimals1 = tokens.Decimals1
		}
		priceData.Update(detector.PriceObservation{
			Chain:          update.ChainID,
			Dex:            update.DexName,
			NormalizedPair: normalizedPairKey(update),
			PairAddress:    update.PairAddress,
			Token0:         update.Token0,
			Token1:         update.Token1,
			Decimals1:      decimals1,
			Price:          mid,
			TimestampMs:    update.TimestampMs,
		})
		if _, err := messageBus.Produce(ctx, bus.StreamPriceUpdates, map[string]any{
			"chainId": update.ChainID, "dexName": update.DexName, "pairAddress": update.PairAddress,
			"reserve0": update.Reserve0, "reserve1": update.Reserve1, "blockNumber": update.BlockNumber,
			"timestampMs": update.TimestampMs,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to publish price update")
		}

		opportunities := chainDetector.OnReserveUpdate(update.PairAddress, bigFromDecimalString(update.Reserve0), bigFromDecimalString(update.Reserve1), update.BlockNumber)
		for _, opp := range opportunities {
			publishOpportunity(ctx, messageBus, recorder, opp)
		}
	}

	if event, ok, err := decoder.DecodeSwap(raw); err != nil {
		log.Warn().Err(err).Msg("failed to decode swap event")
	} else if ok {
		observeSwapForWhaleSignal(whaleTracker, decoder, event)
		if _, err := messageBus.Produce(ctx, bus.StreamSwapEvents, map[string]any{
			"chainId": event.ChainID, "dexName": event.DexName, "pairAddress": event.PairAddress,
			"sender": event.Sender, "txHash": event.TxHash, "blockNumber": event.BlockNumber,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to publish swap event")
		}
	}
}

// normalizedPairKey keys a price observation by chain-independent symbol
// identity when the static topology supplies one, falling back to the
// chain-local token-address key (same-chain comparisons only) when it
// doesn't, and finally to the raw pair address if even that is missing.
func normalizedPairKey(update types.PriceUpdate) string {
	if update.Symbol0 != "" && update.Symbol1 != "" {
		return types.NormalizeSymbolKey(update.Symbol0, update.Symbol1)
	}
	if common.IsHexAddress(update.Token0) && common.IsHexAddress(update.Token1) {
		return types.NormalizeTokenKey(common.HexToAddress(update.Token0), common.HexToAddress(update.Token1))
	}
	return update.PairAddress
}

// observeSwapForWhaleSignal feeds a decoded swap's size into the whale
// tracker, approximating USD value from raw token0 units (ChainDetector's
// liquidity check likewise treats raw token units as USD) since no price
// oracle is wired to the ingestion path.
func observeSwapForWhaleSignal(whaleTracker *detector.SwapWhaleTracker, decoder *ingestion.EventDecoder, event types.SwapEvent) {
	if whaleTracker == nil {
		return
	}
	tokens, ok := decoder.TokensForPair(event.PairAddress)
	if !ok {
		return
	}
	amount := event.Amount0In
	buyingToken0 := false
	if event.Amount0Out.Sign() > 0 {
		amount, buyingToken0 = event.Amount0Out, true
	}
	sizeUsd := util.WeiToFloat(amount, tokens.Decimals0)
	key := types.NormalizeSymbolKey(tokens.Symbol0, tokens.Symbol1)
	whaleTracker.Observe(key, sizeUsd, buyingToken0)
}

func bigFromDecimalString(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

// publishOpportunity persists and republishes a detected opportunity for
// the execution consumer to pick up.
func publishOpportunity(ctx context.Context, messageBus *bus.Bus, recorder *db.AuditRecorder, opp types.Opportunity) {
	if recorder != nil {
		_ = recorder.RecordOpportunity(opp)
	}
	_, _ = messageBus.Produce(ctx, bus.StreamOpportunities, map[string]any{
		"id": opp.ID, "type": string(opp.Type), "buyChain": opp.BuyChain, "sellChain": opp.SellChain,
		"expectedProfitUsd": opp.ExpectedProfitUsd, "confidence": opp.Confidence,
	})
}

// runExecutionConsumer drains the opportunity stream through the engine
// for a fixed operator wallet, recording the outcome back to the audit
// trail.
func runExecutionConsumer(ctx context.Context, messageBus *bus.Bus, engine *execution.Engine, log zerolog.Logger) {
	if err := messageBus.CreateGroup(ctx, bus.StreamOpportunities, bus.GroupExecutionEngine, "0"); err != nil {
		log.Warn().Err(err).Msg("failed to create execution-engine consumer group")
	}

	handler := func(ctx context.Context, msg bus.Message) error {
		opp := types.Opportunity{
			ID:                msg.Fields["id"],
			BuyChain:          msg.Fields["buyChain"],
			SellChain:         msg.Fields["sellChain"],
			ExpectedProfitUsd: parseFloatOrZero(msg.Fields["expectedProfitUsd"]),
			Confidence:        parseFloatOrZero(msg.Fields["confidence"]),
			DetectedAtMs:      time.Now().UnixMilli(),
			ExpiresAtMs:       time.Now().Add(time.Minute).UnixMilli(),
		}
		decision := engine.Process(ctx, opp, os.Getenv("OPERATOR_WALLET"))
		if decision.Err != nil {
			log.Error().Err(decision.Err).Str("opportunity", opp.ID).Msg("execution error")
		} else if decision.Skip != types.SkipNone {
			log.Debug().Str("opportunity", opp.ID).Str("reason", string(decision.Skip)).Msg("opportunity skipped")
		} else {
			log.Info().Str("opportunity", opp.ID).Str("tx", decision.Submission.SubmittedHash).Msg("opportunity executed")
		}
		return nil
	}

	consumer := bus.NewStreamConsumer(messageBus, bus.StreamOpportunities, bus.GroupExecutionEngine, "core-1", 10, time.Second, handler, log)
	_ = consumer.Start(ctx)
	<-ctx.Done()
	consumer.Stop()
}

func parseFloatOrZero(s string) float64 {
	var v float64
	_, _ = fmt.Sscanf(s, "%g", &v)
	return v
}

func chainStalenessByID(chains []config.ChainConfig) map[string]int {
	out := make(map[string]int, len(chains))
	for _, c := range chains {
		out[c.ChainID] = c.StalenessMs
	}
	return out
}

// rpcGasOracle quotes the chain's current suggested gas price via
// go-ethereum's SuggestGasPrice, implementing cache.GasOracle.
type rpcGasOracle struct {
	clients map[string]*ethclient.Client
	log     zerolog.Logger
}

func newRPCGasOracle(chains []config.ChainConfig, log zerolog.Logger) *rpcGasOracle {
	clients := make(map[string]*ethclient.Client, len(chains))
	for _, c := range chains {
		if c.RPCURL == "" {
			continue
		}
		client, err := ethclient.Dial(c.RPCURL)
		if err != nil {
			log.Warn().Err(err).Str("chain", c.ChainID).Msg("gas oracle could not dial chain RPC")
			continue
		}
		clients[c.ChainID] = client
	}
	return &rpcGasOracle{clients: clients, log: log}
}

func (o *rpcGasOracle) SuggestGasPriceGwei(ctx context.Context, chainID string) (float64, error) {
	client, ok := o.clients[chainID]
	if !ok {
		return 0, fmt.Errorf("gas oracle: no RPC client for chain %q", chainID)
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("suggest gas price: %w", err)
	}
	gwei := new(big.Float).Quo(new(big.Float).SetInt(price), big.NewFloat(1e9))
	f, _ := gwei.Float64()
	return f, nil
}

// coreStatusSource adapts the process's live components to
// health.StatusSource.
type coreStatusSource struct {
	wsManagers      []*ingestion.WebSocketManager
	circuitBreakers *execution.CircuitBreakerManager
	drawdown        *risk.DrawdownCircuitBreaker
	chainIDs        []string
	stalenessMs     map[string]int
}

func (s *coreStatusSource) ChainStatuses() []health.ChainStatus {
	out := make([]health.ChainStatus, 0, len(s.wsManagers))
	for _, m := range s.wsManagers {
		out = append(out, health.ChainStatus{
			ChainID:       m.ChainID(),
			Connected:     m.LastMessageAtMs() > 0,
			LastMessageMs: m.LastMessageAtMs(),
			Stale:         m.IsStale(),
		})
	}
	return out
}

func (s *coreStatusSource) CircuitStatuses() []health.CircuitStatus {
	out := make([]health.CircuitStatus, 0, len(s.chainIDs))
	for _, chainID := range s.chainIDs {
		out = append(out, health.CircuitStatus{Chain: chainID, State: s.circuitBreakers.State(chainID).String()})
	}
	return out
}

func (s *coreStatusSource) DrawdownState() types.DrawdownState {
	return s.drawdown.State()
}

var _ health.StatusSource = (*coreStatusSource)(nil)

// buildStrategies constructs the execution.Strategy set from config,
// currently just the flash-loan strategy over every chain with a
// configured executor contract. Other strategy types (intra-chain
// direct, triangular, statistical) have no executor-contract surface
// yet and are left for a future strategy addition.
func buildStrategies(cfg *config.Config, gasPrices *cache.GasPriceCache, log zerolog.Logger) []execution.Strategy {
	key, err := resolveWalletKey(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("no usable wallet key, flash-loan strategy disabled")
		return nil
	}

	executors := make(map[string]execution.ChainExecutor)
	chainNum := make(map[string]*big.Int)
	for _, c := range cfg.Chains {
		if c.ExecutorAddress == "" || !common.IsHexAddress(c.ExecutorAddress) {
			continue
		}
		protocol := contractclient.ProtocolAaveV3
		if c.FlashLoanProtocol == string(contractclient.ProtocolUniswapV3) {
			protocol = contractclient.ProtocolUniswapV3
		}
		executors[c.ChainID] = execution.NewChainExecutor(common.HexToAddress(c.ExecutorAddress), protocol)
		chainNum[c.ChainID] = big.NewInt(c.ChainIDNumeric)
	}
	if len(executors) == 0 {
		log.Warn().Msg("no chain has an executor contract configured, flash-loan strategy disabled")
		return nil
	}

	strategy := execution.NewFlashLoanStrategy(executors, chainNum, gasPrices, 0, key)
	return []execution.Strategy{strategy}
}

// resolveWalletKey decrypts the operator wallet's private key from
// ENC_PK (AES-GCM, see pkg/util.Decrypt) using the WALLET_ENC_KEY
// environment secret.
func resolveWalletKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.WalletKeyEnc == "" {
		return nil, fmt.Errorf("ENC_PK not set")
	}
	encKey := os.Getenv("WALLET_ENC_KEY")
	if encKey == "" {
		return nil, fmt.Errorf("WALLET_ENC_KEY not set")
	}
	plaintext, err := util.Decrypt([]byte(encKey), cfg.WalletKeyEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet key: %w", err)
	}
	return crypto.HexToECDSA(strings.TrimPrefix(plaintext, "0x"))
}
