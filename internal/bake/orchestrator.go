package bake

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contentpress/bakerd/internal/domain"
	"github.com/contentpress/bakerd/internal/event"
	"github.com/contentpress/bakerd/internal/executor"
	"github.com/contentpress/bakerd/internal/provider"
	"github.com/contentpress/bakerd/internal/repository"
)

// Executor is the slice of the task pool the orchestrator consumes. It is
// injected explicitly; there is no name-keyed task registry to look up.
type Executor interface {
	Submit(fn executor.TaskFunc) (executor.TaskHandle, error)
}

// Limiter paces build attempts. The production implementation is
// ratelimiter.BakeLimiter.
type Limiter interface {
	Wait(ctx context.Context) error
}

// MetricHooks carries the metric callbacks injected by main.
type MetricHooks struct {
	OnBaked func(state domain.BakeState, d time.Duration)
}

// Orchestrator drives a module from "just published" to a terminal bake
// state. HandlePublished runs synchronously on the listener goroutine and
// only persists the processing state and submits the task; the build
// sequence itself runs on the executor's workers.
type Orchestrator struct {
	store        repository.BakeStore
	exec         Executor
	docs         provider.DocumentProvider
	baker        provider.Baker
	limiter      Limiter
	logger       *zap.Logger
	hooks        MetricHooks
	messageLimit int
}

func New(
	store repository.BakeStore,
	exec Executor,
	docs provider.DocumentProvider,
	baker provider.Baker,
	limiter Limiter,
	logger *zap.Logger,
	hooks MetricHooks,
	messageLimit int,
) *Orchestrator {
	if hooks.OnBaked == nil {
		hooks.OnBaked = func(domain.BakeState, time.Duration) {}
	}
	return &Orchestrator{
		store:        store,
		exec:         exec,
		docs:         docs,
		baker:        baker,
		limiter:      limiter,
		logger:       logger,
		hooks:        hooks,
		messageLimit: messageLimit,
	}
}

// HandlePublished is the handler registered for the post-publication event.
//
// The processing write happens, and must be visible, before the task is
// submitted: status readers see "processing" promptly no matter how long
// the build takes. A submission failure leaves the module in processing;
// noticing and re-driving stuck processing items is an external
// reconciliation (or operator) concern, not this handler's.
func (o *Orchestrator) HandlePublished(ctx context.Context, evt event.Event) error {
	pub, ok := evt.(event.Published)
	if !ok {
		return fmt.Errorf("unexpected event type %T for %q", evt, event.KindPublished)
	}

	log := o.logger.With(
		zap.Int("module_ident", pub.ModuleIdent),
		zap.String("ident_hash", pub.IdentHash),
	)
	log.Debug("processing publication event")

	if err := o.store.SetBakeState(ctx, pub.ModuleIdent, domain.StateProcessing, nil, ""); err != nil {
		return fmt.Errorf("mark module %d as processing: %w", pub.ModuleIdent, err)
	}

	handle, err := o.exec.Submit(func(taskCtx context.Context) error {
		return o.runBake(taskCtx, pub.ModuleIdent, pub.IdentHash)
	})
	if err != nil {
		return fmt.Errorf("submit bake task for module %d: %w", pub.ModuleIdent, err)
	}

	if err := o.store.RecordTaskAssociation(ctx, pub.ModuleIdent, handle.ID); err != nil {
		// The task is already running; only status correlation is lost.
		return fmt.Errorf("record task association for module %d: %w", pub.ModuleIdent, err)
	}

	log.Info("bake task submitted", zap.String("task_id", handle.ID))
	return nil
}

// HandleStartupScan replays notifications for modules still in the
// post-publication state, so work interrupted by downtime is not lost.
func (o *Orchestrator) HandleStartupScan(ctx context.Context, _ event.Event) error {
	count, err := o.store.NotifyPendingPublications(ctx)
	if err != nil {
		return fmt.Errorf("startup scan: %w", err)
	}
	if count > 0 {
		o.logger.Info("re-notified pending publications", zap.Int("count", count))
	}
	return nil
}

// buildAttempt pairs a candidate recipe with the terminal state a success
// with that recipe yields.
type buildAttempt struct {
	recipeID int
	success  domain.BakeState
}

// runBake is the asynchronous build sequence. It writes exactly one
// terminal state per execution, as its last observable effect; every
// failure branch funnels through finish.
func (o *Orchestrator) runBake(ctx context.Context, moduleIdent int, identHash string) error {
	start := time.Now()
	log := o.logger.With(
		zap.Int("module_ident", moduleIdent),
		zap.String("ident_hash", identHash),
	)

	if err := o.limiter.Wait(ctx); err != nil {
		// Shutting down before the attempt started; the module stays in
		// processing until external reconciliation re-drives it.
		return err
	}

	tree, err := o.docs.FetchDocumentTree(ctx, identHash)
	if err != nil {
		o.finish(ctx, log, moduleIdent, domain.StateErrored, nil, err, start)
		return fmt.Errorf("fetch document tree for %q: %w", identHash, err)
	}

	info, err := o.store.PublicationInfo(ctx, identHash)
	if err != nil {
		o.finish(ctx, log, moduleIdent, domain.StateErrored, nil, err, start)
		return fmt.Errorf("publication info for %q: %w", identHash, err)
	}

	candidates, err := o.store.ResolveRecipeCandidates(ctx, moduleIdent)
	if err != nil {
		o.finish(ctx, log, moduleIdent, domain.StateErrored, nil, err, start)
		return fmt.Errorf("resolve recipe candidates for module %d: %w", moduleIdent, err)
	}
	if candidates.Empty() {
		o.finish(ctx, log, moduleIdent, domain.StateErrored, nil, domain.ErrNoRecipes, start)
		return domain.ErrNoRecipes
	}

	// Stale artifacts from a previous bake go away before any attempt,
	// so re-bakes never accumulate leftovers.
	if err := o.store.RemoveDerivedContent(ctx, identHash); err != nil {
		o.finish(ctx, log, moduleIdent, domain.StateErrored, nil, err, start)
		return fmt.Errorf("remove derived content for %q: %w", identHash, err)
	}

	var attempts []buildAttempt
	if candidates.Primary != nil {
		attempts = append(attempts, buildAttempt{recipeID: *candidates.Primary, success: domain.StateCurrent})
	}
	if candidates.Fallback != nil {
		attempts = append(attempts, buildAttempt{recipeID: *candidates.Fallback, success: domain.StateFallback})
	}

	for i := range attempts {
		a := attempts[i]
		err := o.baker.Bake(ctx, tree, a.recipeID, info)
		if err == nil {
			o.finish(ctx, log, moduleIdent, a.success, &attempts[i].recipeID, nil, start)
			return nil
		}

		if i < len(attempts)-1 {
			log.Warn("bake attempt failed, trying fallback recipe",
				zap.Int("recipe_id", a.recipeID),
				zap.Error(err),
			)
			continue
		}

		o.finish(ctx, log, moduleIdent, domain.StateErrored, &attempts[i].recipeID, err, start)
		return fmt.Errorf("bake module %d with recipe %d: %w", moduleIdent, a.recipeID, err)
	}

	// Unreachable: the candidate list is non-empty and every iteration
	// either returns or continues to a following attempt.
	return nil
}

// finish persists the terminal state. The persisted message is a bounded
// excerpt; the full failure detail stays in logs and the executor's result
// store.
func (o *Orchestrator) finish(
	ctx context.Context,
	log *zap.Logger,
	moduleIdent int,
	state domain.BakeState,
	recipeID *int,
	cause error,
	start time.Time,
) {
	msg := ""
	if cause != nil {
		msg = domain.ExcerptMessage(cause.Error(), o.messageLimit)
	}

	if err := o.store.SetBakeState(ctx, moduleIdent, state, recipeID, msg); err != nil {
		log.Error("failed to persist terminal bake state",
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}

	elapsed := time.Since(start)
	o.hooks.OnBaked(state, elapsed)

	if cause != nil {
		log.Warn("bake finished",
			zap.String("state", string(state)),
			zap.Duration("elapsed", elapsed),
			zap.Error(cause),
		)
		return
	}
	log.Info("bake finished",
		zap.String("state", string(state)),
		zap.Duration("elapsed", elapsed),
	)
}
