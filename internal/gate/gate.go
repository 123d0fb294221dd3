// Package gate is the single choke point callers ask before exercising a
// capability. It owns no policy of its own: the consent ledger and the voice
// service decide, the gate records that a decision was made and which way it
// went.
package gate

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"everkeep/internal/audit"
	"everkeep/internal/consent"
	"everkeep/internal/platform/metrics"
	"everkeep/internal/voice"
	id "everkeep/pkg/domain"
)

var tracer = otel.Tracer("everkeep/internal/gate")

// Auditor is the slice of the audit service this package needs.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) (audit.Event, error)
}

// ConsentChecker evaluates non-generation capability decisions.
type ConsentChecker interface {
	Check(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (consent.Decision, error)
}

// Generator runs the full generation decision, consuming budget on success.
type Generator interface {
	Generate(ctx context.Context, memorialID id.MemorialID, actorID id.ActorID, tier id.PlanTier) (voice.GenerateDecision, error)
}

// Gate fronts capability checks. Every answer it gives is audited before
// the caller sees it; a gate whose trail can be incomplete is not a gate.
type Gate struct {
	consents  ConsentChecker
	generator Generator
	audit     Auditor
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func New(consents ConsentChecker, generator Generator, auditor Auditor, opts ...Option) *Gate {
	g := &Gate{
		consents:  consents,
		generator: generator,
		audit:     auditor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow answers whether the actor may exercise the capability right now.
// The decision is audited either way; an audit failure denies.
func (g *Gate) Allow(ctx context.Context, actorID id.ActorID, capability id.CapabilityType, memorialID *id.MemorialID) (consent.Decision, error) {
	ctx, span := tracer.Start(ctx, "gate.Allow",
		trace.WithAttributes(attribute.String("capability", capability.String())))
	defer span.End()

	decision, err := g.consents.Check(ctx, actorID, capability, memorialID)
	if err != nil {
		return consent.Decision{}, err
	}
	span.SetAttributes(attribute.Bool("allowed", decision.Valid))

	metadata := map[string]any{"capability": capability.String()}
	if !decision.Valid {
		metadata["reason"] = string(decision.Reason)
	}
	if err := g.record(ctx, decision.Valid, &actorID, memorialID, metadata); err != nil {
		return consent.Decision{}, err
	}
	g.observe(capability, decision.Valid)
	return decision, nil
}

// AllowGeneration answers whether one voice generation may proceed, and if
// so consumes budget. The consent, verification, sufficiency, and limit
// checks all run inside the voice service under its key lock.
func (g *Gate) AllowGeneration(ctx context.Context, memorialID id.MemorialID, actorID id.ActorID, tier id.PlanTier) (voice.GenerateDecision, error) {
	ctx, span := tracer.Start(ctx, "gate.AllowGeneration",
		trace.WithAttributes(attribute.String("plan_tier", tier.String())))
	defer span.End()

	decision, err := g.generator.Generate(ctx, memorialID, actorID, tier)
	if err != nil {
		return voice.GenerateDecision{}, err
	}
	span.SetAttributes(attribute.Bool("allowed", decision.Allowed))

	metadata := map[string]any{
		"capability": "voice_generation",
		"plan_tier":  tier.String(),
	}
	if !decision.Allowed {
		metadata["reason"] = decision.Reason
	}
	if err := g.record(ctx, decision.Allowed, &actorID, &memorialID, metadata); err != nil {
		return voice.GenerateDecision{}, err
	}
	g.observe("voice_generation", decision.Allowed)
	return decision, nil
}

func (g *Gate) record(ctx context.Context, allowed bool, actorID *id.ActorID, memorialID *id.MemorialID, metadata map[string]any) error {
	kind := audit.KindGateDenied
	if allowed {
		kind = audit.KindGateAllowed
	}
	_, err := g.audit.Record(ctx, audit.Entry{
		Kind:       kind,
		ActorID:    actorID,
		MemorialID: memorialID,
		SessionID:  audit.SessionFromContext(ctx),
		Client:     audit.ClientFromContext(ctx),
		Metadata:   metadata,
	})
	return err
}

func (g *Gate) observe(capability id.CapabilityType, allowed bool) {
	if g.metrics == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	g.metrics.GateDecisions.WithLabelValues(capability.String(), outcome).Inc()
}
