package execution

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackhole-arb/arbcore/internal/risk"
	"github.com/blackhole-arb/arbcore/internal/types"
)

// ProbabilitySource supplies the historical win rate for an opportunity's
// bucket, consumed by the EV gate ahead of Kelly sizing.
type ProbabilitySource interface {
	WinProbability(key risk.ProbabilityKey, now time.Time) float64
}

// OutcomeRecorder receives the final result of an attempted opportunity,
// feeding the drawdown breaker and probability tracker.
type OutcomeRecorder interface {
	RecordOutcome(key risk.ProbabilityKey, win bool, now time.Time)
}

// EngineDecision is the full audit trail of one opportunity passing
// through the pipeline: either a SkipReason with no transaction, or a
// completed submission.
type EngineDecision struct {
	OpportunityID string
	Skip          types.SkipReason
	Submission    SubmissionResult
	Simulated     bool
	SizedAmount   *big.Int
	Err           error
}

// EngineConfig bundles the thresholds the engine enforces on every
// opportunity before committing capital.
type EngineConfig struct {
	GasBucketWidthUsd     float64 // bucket width used to build risk.ProbabilityKey.GasBucket
	SimulateThresholdUsd  float64 // below this, step 6 skips pre-flight simulation (default $50)
}

// Engine is the opportunity-to-transaction pipeline: circuit breaker,
// drawdown, EV, Kelly sizing, strategy selection, pre-flight simulation,
// nonce allocation, MEV submission, outcome recording, in that order.
// Generalized from a linear "build -> simulate -> send -> record"
// swap flow into named, independently-testable
// gate methods so policy rejects are distinguishable from execution
// errors (neither blocks the next opportunity).
type Engine struct {
	cfg EngineConfig
	log zerolog.Logger

	breakers     *CircuitBreakerManager
	drawdown     *risk.DrawdownCircuitBreaker
	ev           *risk.EVCalculator
	kelly        *risk.KellyPositionSizer
	probability  ProbabilitySource
	outcomes     OutcomeRecorder
	router       *StrategyRouter
	simulator    *SimulationService
	nonces       *NonceManager
	mev          *MevProvider
	clock        types.Clock
}

// NewEngine wires the full pipeline from its component services.
func NewEngine(
	cfg EngineConfig,
	log zerolog.Logger,
	breakers *CircuitBreakerManager,
	drawdown *risk.DrawdownCircuitBreaker,
	ev *risk.EVCalculator,
	kelly *risk.KellyPositionSizer,
	probability ProbabilitySource,
	outcomes OutcomeRecorder,
	router *StrategyRouter,
	simulator *SimulationService,
	nonces *NonceManager,
	mev *MevProvider,
	clock types.Clock,
) *Engine {
	if clock == nil {
		clock = types.SystemClock
	}
	if cfg.SimulateThresholdUsd <= 0 {
		cfg.SimulateThresholdUsd = 50
	}
	return &Engine{
		cfg: cfg, log: log,
		breakers: breakers, drawdown: drawdown, ev: ev, kelly: kelly,
		probability: probability, outcomes: outcomes, router: router,
		simulator: simulator, nonces: nonces, mev: mev, clock: clock,
	}
}

// gasBucket buckets GasEstimateUsd into coarse bands so the probability
// tracker's key space stays small (risk.ProbabilityKey).
func (e *Engine) gasBucket(gasUsd float64) string {
	width := e.cfg.GasBucketWidthUsd
	if width <= 0 {
		width = 5
	}
	return fmt.Sprintf("b%d", int(gasUsd/width))
}

func (e *Engine) probabilityKey(opp types.Opportunity, hourOfDay int) risk.ProbabilityKey {
	return risk.ProbabilityKey{
		Chain:      opp.BuyChain,
		Dex:        opp.BuyDex,
		PathLength: len(opp.Path),
		HourOfDay:  hourOfDay,
		GasBucket:  e.gasBucket(opp.GasEstimateUsd),
	}
}

// Process runs opp through the full pipeline and returns a decision that
// is never itself an error for a policy reject; only infrastructure
// failures (simulation bypass aside) populate Err.
func (e *Engine) Process(ctx context.Context, opp types.Opportunity, wallet string) EngineDecision {
	if !opp.Valid() {
		return EngineDecision{OpportunityID: opp.ID, Skip: types.SkipStalePrice}
	}

	if e.breakers != nil && !e.breakers.AllowRequest(opp.BuyChain) {
		return EngineDecision{OpportunityID: opp.ID, Skip: types.SkipCircuitOpen}
	}

	if e.drawdown != nil && e.drawdown.State() == types.DrawdownHalt {
		return EngineDecision{OpportunityID: opp.ID, Skip: types.SkipDrawdownHalt}
	}

	now := time.UnixMilli(e.clock.NowMs())
	key := e.probabilityKey(opp, now.UTC().Hour())

	winProbability := 0.5
	if e.probability != nil {
		winProbability = e.probability.WinProbability(key, now)
	}

	expectedLoss := opp.GasEstimateUsd
	if expectedLoss <= 0 {
		expectedLoss = 1
	}
	ev := e.ev.Calculate(winProbability, opp.ExpectedProfitUsd, opp.GasEstimateUsd, expectedLoss)
	if !e.ev.Passes(ev) {
		return EngineDecision{OpportunityID: opp.ID, Skip: types.SkipLowEV}
	}

	drawdownMultiplier := 1.0
	if e.drawdown != nil {
		drawdownMultiplier = e.drawdown.State().SizeMultiplier()
	}
	fraction := e.kelly.Size(winProbability, opp.ExpectedProfitUsd, expectedLoss, drawdownMultiplier)
	if fraction <= 0 {
		return EngineDecision{OpportunityID: opp.ID, Skip: types.SkipZeroPositionSize}
	}

	baseAmount := opp.AmountIn
	if baseAmount == nil {
		baseAmount = big.NewInt(0)
	}
	sizedAmount := scaleByFraction(baseAmount, fraction)

	strategy, err := e.router.Route(opp)
	if err != nil {
		return EngineDecision{OpportunityID: opp.ID, Skip: types.SkipNone, Err: err}
	}

	var simulated bool
	if opp.ExpectedProfitUsd >= e.cfg.SimulateThresholdUsd {
		simResult, simErr := e.simulator.Simulate(ctx, SimulationRequest{
			Chain: opp.BuyChain,
			From:  opp.TokenIn,
			To:    opp.TokenOut,
		})
		simulated = simErr == nil
		if simulated && simResult.Reverts {
			e.recordFailure(opp, key, now)
			return EngineDecision{OpportunityID: opp.ID, Skip: types.SkipSimulationRevert, Simulated: true}
		}
	}

	nonce, err := e.nonces.GetNextNonce(ctx, opp.BuyChain, wallet)
	if err != nil {
		return EngineDecision{OpportunityID: opp.ID, Err: err}
	}

	tx, err := strategy.Build(opp, sizedAmount)
	if err != nil {
		e.nonces.OnFailed(opp.BuyChain, wallet, nonce, false)
		e.recordFailure(opp, key, now)
		return EngineDecision{OpportunityID: opp.ID, Err: err, SizedAmount: sizedAmount}
	}
	tx.ChainID = opp.BuyChain
	tx.ValueUsd = opp.ExpectedProfitUsd
	tx.PathLength = len(opp.Path)

	result, err := e.mev.Submit(ctx, tx)
	if err != nil {
		e.nonces.OnFailed(opp.BuyChain, wallet, nonce, false)
		if e.breakers != nil {
			e.breakers.RecordFailure(opp.BuyChain)
		}
		e.recordFailure(opp, key, now)
		return EngineDecision{OpportunityID: opp.ID, Err: err, SizedAmount: sizedAmount, Simulated: simulated}
	}

	e.nonces.OnConfirmed(opp.BuyChain, wallet, nonce)
	if e.breakers != nil {
		e.breakers.RecordSuccess(opp.BuyChain)
	}
	if e.drawdown != nil {
		e.drawdown.RecordOutcome(opp.ExpectedProfitUsd-opp.GasEstimateUsd, true)
	}
	if e.outcomes != nil {
		e.outcomes.RecordOutcome(key, true, now)
	}

	return EngineDecision{
		OpportunityID: opp.ID,
		Submission:    result,
		Simulated:     simulated,
		SizedAmount:   sizedAmount,
	}
}

func (e *Engine) recordFailure(opp types.Opportunity, key risk.ProbabilityKey, now time.Time) {
	if e.drawdown != nil {
		e.drawdown.RecordOutcome(-opp.GasEstimateUsd, false)
	}
	if e.outcomes != nil {
		e.outcomes.RecordOutcome(key, false, now)
	}
}

// scaleByFraction scales amount by fraction, treating fraction <= 0 as 0
// and fraction >= 1 as 1 (risk.KellyPositionSizer already clamps its
// output range).
func scaleByFraction(amount *big.Int, fraction float64) *big.Int {
	if fraction <= 0 {
		return big.NewInt(0)
	}
	if fraction >= 1 {
		return amount
	}
	scaled := new(big.Float).Mul(new(big.Float).SetInt(amount), big.NewFloat(fraction))
	out, _ := scaled.Int(nil)
	return out
}
