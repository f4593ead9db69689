package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orion-triage/internal/aiopinion"
	"github.com/sells-group/orion-triage/internal/engine"
	"github.com/sells-group/orion-triage/internal/fairness"
	"github.com/sells-group/orion-triage/internal/feedback"
	"github.com/sells-group/orion-triage/internal/fusion"
	"github.com/sells-group/orion-triage/internal/protocol"
	"github.com/sells-group/orion-triage/internal/store"
	"github.com/sells-group/orion-triage/internal/vpp"
	"github.com/sells-group/orion-triage/pkg/anthropic"
	"github.com/sells-group/orion-triage/pkg/medgemma"
)

// Env bundles the wired subsystems for a command invocation.
type Env struct {
	Store   store.Store
	Engine  *engine.Engine
	Auditor *fairness.Auditor
	Alerter *fairness.Alerter
	Loop    *feedback.Loop
}

// Close releases resources and waits for any in-flight retraining cycle.
func (e *Env) Close() {
	if e.Loop != nil {
		e.Loop.Wait()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// openStore creates the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildClassifier selects the AI backend from config. A nil return means
// the AI path is disabled and decisions are rule-only.
func buildClassifier() aiopinion.Classifier {
	switch cfg.AI.Provider {
	case "medgemma":
		if cfg.AI.BaseURL == "" {
			zap.L().Warn("ai.base_url not set; AI path disabled")
			return nil
		}
		client := medgemma.NewClient(cfg.AI.BaseURL, cfg.AI.Key, medgemma.WithModel(cfg.AI.Model))
		return aiopinion.NewMedGemmaClassifier(client, cfg.AI.Model)
	case "anthropic":
		if cfg.AI.Key == "" {
			zap.L().Warn("ai.key not set; AI path disabled")
			return nil
		}
		return aiopinion.NewAnthropicClassifier(anthropic.NewClient(cfg.AI.Key), cfg.AI.Model)
	case "":
		return nil
	default:
		zap.L().Warn("unknown ai.provider; AI path disabled", zap.String("provider", cfg.AI.Provider))
		return nil
	}
}

// buildRetrainer wires the feedback loop to the classification service's
// training pipeline. Only the medgemma backend trains.
func buildRetrainer() feedback.Retrainer {
	if cfg.AI.Provider != "medgemma" || cfg.AI.BaseURL == "" {
		return nil
	}
	client := medgemma.NewTrainingClient(cfg.AI.BaseURL, cfg.AI.Key, medgemma.WithModel(cfg.AI.Model))
	return feedback.NewServiceRetrainer(client, cfg.AI.Model)
}

// initEnv wires the full engine: knowledge base, store, AI adapter,
// fusion policy, optimizer, feedback loop, and fairness auditor.
func initEnv(ctx context.Context) (*Env, error) {
	protocols, err := protocol.LoadDir(cfg.Knowledge.Path)
	if err != nil {
		return nil, err
	}
	evaluator := protocol.NewEvaluator(protocols)

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	var ai engine.OpinionProvider
	if classifier := buildClassifier(); classifier != nil {
		ai = aiopinion.NewAdapter(classifier, cfg.AI)
	}

	loop := feedback.NewLoop(cfg.Feedback, buildRetrainer(), st)

	eng := engine.New(
		evaluator,
		ai,
		fusion.NewPolicy(cfg.Fusion),
		vpp.NewOptimizer(cfg.VPP, cfg.Vitals),
		cfg.Vitals,
		st,
		loop,
	)

	return &Env{
		Store:   st,
		Engine:  eng,
		Auditor: fairness.NewAuditor(st, cfg.Fairness),
		Alerter: fairness.NewAlerter(cfg.Fairness),
		Loop:    loop,
	}, nil
}
