package bake_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/contentpress/bakerd/internal/bake"
	"github.com/contentpress/bakerd/internal/domain"
	"github.com/contentpress/bakerd/internal/event"
	"github.com/contentpress/bakerd/internal/executor"
	"github.com/contentpress/bakerd/internal/repository"
)

// manualExecutor captures submitted tasks so tests control when the
// asynchronous part runs, mirroring the submit-then-execute split of the
// real pool.
type manualExecutor struct {
	tasks     []executor.TaskFunc
	handles   []string
	submitErr error
}

func (e *manualExecutor) Submit(fn executor.TaskFunc) (executor.TaskHandle, error) {
	if e.submitErr != nil {
		return executor.TaskHandle{}, e.submitErr
	}
	id := fmt.Sprintf("task-%d", len(e.tasks)+1)
	e.tasks = append(e.tasks, fn)
	e.handles = append(e.handles, id)
	return executor.TaskHandle{ID: id}, nil
}

// runAll executes every captured task and returns their errors.
func (e *manualExecutor) runAll() []error {
	errs := make([]error, len(e.tasks))
	for i, fn := range e.tasks {
		errs[i] = fn(context.Background())
	}
	e.tasks = nil
	return errs
}

type stubDocs struct {
	fetched []string
	err     error
}

func (d *stubDocs) FetchDocumentTree(_ context.Context, identHash string) (*domain.DocumentTree, error) {
	d.fetched = append(d.fetched, identHash)
	if d.err != nil {
		return nil, d.err
	}
	return &domain.DocumentTree{IdentHash: identHash, Title: "College Physics"}, nil
}

// scriptedBaker fails attempts whose recipe id appears in failures and
// records, per call, how much derived content had been removed by then.
type scriptedBaker struct {
	failures      map[int]error
	calls         []int
	removedAtCall []int
	store         *repository.MockBakeStore
}

func (b *scriptedBaker) Bake(_ context.Context, _ *domain.DocumentTree, recipeID int, _ domain.PublicationInfo) error {
	b.calls = append(b.calls, recipeID)
	if b.store != nil {
		b.removedAtCall = append(b.removedAtCall, len(b.store.Removed))
	}
	if err, ok := b.failures[recipeID]; ok {
		return err
	}
	return nil
}

type nopLimiter struct{}

func (nopLimiter) Wait(context.Context) error { return nil }

func intPtr(n int) *int { return &n }

type fixture struct {
	orch  *bake.Orchestrator
	store *repository.MockBakeStore
	exec  *manualExecutor
	docs  *stubDocs
	baker *scriptedBaker
}

func newFixture(candidates domain.RecipeCandidates, bakeFailures map[int]error) *fixture {
	store := repository.NewMockBakeStore()
	store.Candidates = candidates
	store.Info = domain.PublicationInfo{Publisher: "cnxpress", Message: "republished"}

	exec := &manualExecutor{}
	docs := &stubDocs{}
	baker := &scriptedBaker{failures: bakeFailures, store: store}

	orch := bake.New(store, exec, docs, baker, nopLimiter{}, zap.NewNop(), bake.MetricHooks{}, 256)
	return &fixture{orch: orch, store: store, exec: exec, docs: docs, baker: baker}
}

var publishedEvt = event.Published{ModuleIdent: 42, IdentHash: "abc@1.1", Timestamp: "2017-01-01"}

func TestHandlePublished_MarksProcessingThenSubmits(t *testing.T) {
	f := newFixture(domain.RecipeCandidates{Primary: intPtr(7)}, nil)

	if err := f.orch.HandlePublished(context.Background(), publishedEvt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	writes := f.store.Writes()
	if len(writes) != 1 {
		t.Fatalf("expected exactly the processing write before the task runs, got %v", writes)
	}
	if writes[0].State != domain.StateProcessing || writes[0].RecipeID != nil || writes[0].ModuleIdent != 42 {
		t.Fatalf("expected SetBakeState(42, processing, nil), got %+v", writes[0])
	}

	if len(f.exec.tasks) != 1 {
		t.Fatalf("expected one submitted task, got %d", len(f.exec.tasks))
	}
	if len(f.store.Associations) != 1 ||
		f.store.Associations[0].ModuleIdent != 42 ||
		f.store.Associations[0].TaskID != f.exec.handles[0] {
		t.Fatalf("expected association {42, %s}, got %v", f.exec.handles[0], f.store.Associations)
	}

	f.exec.runAll()
	if len(f.docs.fetched) != 1 || f.docs.fetched[0] != "abc@1.1" {
		t.Fatalf("expected task to fetch tree for abc@1.1, got %v", f.docs.fetched)
	}
}

func TestRunBake_PrimarySucceeds(t *testing.T) {
	f := newFixture(domain.RecipeCandidates{Primary: intPtr(7), Fallback: intPtr(9)}, nil)

	f.orch.HandlePublished(context.Background(), publishedEvt)
	errs := f.exec.runAll()
	if errs[0] != nil {
		t.Fatalf("unexpected task error: %v", errs[0])
	}

	writes := f.store.Writes()
	final := writes[len(writes)-1]
	if final.State != domain.StateCurrent || final.RecipeID == nil || *final.RecipeID != 7 {
		t.Fatalf("expected final SetBakeState(42, current, 7), got %+v", final)
	}
	if len(f.baker.calls) != 1 || f.baker.calls[0] != 7 {
		t.Fatalf("expected a single primary attempt, got %v", f.baker.calls)
	}
	if len(f.store.Removed) != 1 || f.store.Removed[0] != "abc@1.1" {
		t.Fatalf("expected derived content removed for abc@1.1, got %v", f.store.Removed)
	}
	if f.baker.removedAtCall[0] != 1 {
		t.Fatal("expected removal to happen before the build attempt")
	}
}

func TestRunBake_FallbackSucceeds(t *testing.T) {
	f := newFixture(
		domain.RecipeCandidates{Primary: intPtr(7), Fallback: intPtr(9)},
		map[int]error{7: errors.New("primary recipe broke")},
	)

	f.orch.HandlePublished(context.Background(), publishedEvt)
	errs := f.exec.runAll()
	if errs[0] != nil {
		t.Fatalf("fallback succeeded, task should report success: %v", errs[0])
	}

	final := lastWrite(t, f.store)
	if final.State != domain.StateFallback || final.RecipeID == nil || *final.RecipeID != 9 {
		t.Fatalf("expected final SetBakeState(42, fallback, 9), got %+v", final)
	}
	if len(f.baker.calls) != 2 || f.baker.calls[0] != 7 || f.baker.calls[1] != 9 {
		t.Fatalf("expected attempts [7 9], got %v", f.baker.calls)
	}
}

func TestRunBake_PrimaryFailsNoFallback(t *testing.T) {
	f := newFixture(
		domain.RecipeCandidates{Primary: intPtr(7)},
		map[int]error{7: errors.New("primary recipe broke")},
	)

	f.orch.HandlePublished(context.Background(), publishedEvt)
	errs := f.exec.runAll()
	if errs[0] == nil {
		t.Fatal("expected task to propagate the build failure")
	}

	final := lastWrite(t, f.store)
	if final.State != domain.StateErrored || final.RecipeID == nil || *final.RecipeID != 7 {
		t.Fatalf("expected final SetBakeState(42, errored, 7), got %+v", final)
	}
	if final.Message == "" {
		t.Fatal("expected a failure excerpt in the terminal write")
	}
	if len(f.baker.calls) != 1 {
		t.Fatalf("expected no fallback attempt, got %v", f.baker.calls)
	}
}

func TestRunBake_BothAttemptsFail(t *testing.T) {
	f := newFixture(
		domain.RecipeCandidates{Primary: intPtr(7), Fallback: intPtr(9)},
		map[int]error{7: errors.New("primary broke"), 9: errors.New("fallback broke")},
	)

	f.orch.HandlePublished(context.Background(), publishedEvt)
	errs := f.exec.runAll()
	if errs[0] == nil {
		t.Fatal("expected task to propagate the final build failure")
	}

	final := lastWrite(t, f.store)
	if final.State != domain.StateErrored || final.RecipeID == nil || *final.RecipeID != 9 {
		t.Fatalf("expected final SetBakeState(42, errored, 9), got %+v", final)
	}
}

func TestRunBake_DocumentRetrievalFailureIsTerminal(t *testing.T) {
	f := newFixture(domain.RecipeCandidates{Primary: intPtr(7)}, nil)
	f.docs.err = errors.New("archive is down")

	f.orch.HandlePublished(context.Background(), publishedEvt)
	errs := f.exec.runAll()
	if errs[0] == nil {
		t.Fatal("expected task to propagate the retrieval failure")
	}

	final := lastWrite(t, f.store)
	if final.State != domain.StateErrored || final.RecipeID != nil {
		t.Fatalf("expected final SetBakeState(42, errored, nil), got %+v", final)
	}
	if len(f.baker.calls) != 0 {
		t.Fatalf("expected no build attempts, got %v", f.baker.calls)
	}
	if len(f.store.Removed) != 0 {
		t.Fatal("expected no content removal when the tree never arrived")
	}
}

func TestRunBake_NoCandidatesErrorsWithoutBuilding(t *testing.T) {
	f := newFixture(domain.RecipeCandidates{}, nil)

	f.orch.HandlePublished(context.Background(), publishedEvt)
	errs := f.exec.runAll()
	if !errors.Is(errs[0], domain.ErrNoRecipes) {
		t.Fatalf("expected ErrNoRecipes, got %v", errs[0])
	}

	final := lastWrite(t, f.store)
	if final.State != domain.StateErrored || final.RecipeID != nil {
		t.Fatalf("expected final SetBakeState(42, errored, nil), got %+v", final)
	}
	if len(f.baker.calls) != 0 {
		t.Fatalf("expected no build attempts, got %v", f.baker.calls)
	}
}

func TestRunBake_ExactlyOneTerminalWrite(t *testing.T) {
	cases := []struct {
		name       string
		candidates domain.RecipeCandidates
		failures   map[int]error
	}{
		{"primary ok", domain.RecipeCandidates{Primary: intPtr(7), Fallback: intPtr(9)}, nil},
		{"fallback ok", domain.RecipeCandidates{Primary: intPtr(7), Fallback: intPtr(9)}, map[int]error{7: errors.New("x")}},
		{"both fail", domain.RecipeCandidates{Primary: intPtr(7), Fallback: intPtr(9)}, map[int]error{7: errors.New("x"), 9: errors.New("y")}},
		{"no fallback", domain.RecipeCandidates{Primary: intPtr(7)}, map[int]error{7: errors.New("x")}},
		{"no candidates", domain.RecipeCandidates{}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(tc.candidates, tc.failures)
			f.orch.HandlePublished(context.Background(), publishedEvt)
			f.exec.runAll()

			var terminal int
			for _, w := range f.store.Writes() {
				if w.State.IsTerminal() {
					terminal++
				}
			}
			if terminal != 1 {
				t.Fatalf("expected exactly one terminal write, got %d: %v", terminal, f.store.Writes())
			}
		})
	}
}

func TestHandlePublished_SubmissionFailureKeepsProcessing(t *testing.T) {
	f := newFixture(domain.RecipeCandidates{Primary: intPtr(7)}, nil)
	f.exec.submitErr = domain.ErrQueueFull

	err := f.orch.HandlePublished(context.Background(), publishedEvt)
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull surfaced as handler error, got %v", err)
	}

	writes := f.store.Writes()
	if len(writes) != 1 || writes[0].State != domain.StateProcessing {
		t.Fatalf("expected module left in processing, got %v", writes)
	}
	if len(f.store.Associations) != 0 {
		t.Fatal("expected no association when submission failed")
	}
}

func TestHandlePublished_ReplayYieldsIndependentAttempts(t *testing.T) {
	f := newFixture(domain.RecipeCandidates{Primary: intPtr(7)}, nil)

	f.orch.HandlePublished(context.Background(), publishedEvt)
	f.orch.HandlePublished(context.Background(), publishedEvt)
	f.exec.runAll()

	var processing, terminal int
	for _, w := range f.store.Writes() {
		switch {
		case w.State == domain.StateProcessing:
			processing++
		case w.State.IsTerminal():
			terminal++
		}
	}
	if processing != 2 || terminal != 2 {
		t.Fatalf("expected two full independent attempts, got processing=%d terminal=%d", processing, terminal)
	}
	if len(f.store.Associations) != 2 {
		t.Fatalf("expected two associations, got %d", len(f.store.Associations))
	}
}

func TestRunBake_FailureMessageIsBounded(t *testing.T) {
	longErr := errors.New(strings.Repeat("stylesheet compilation error; ", 50))
	store := repository.NewMockBakeStore()
	store.Candidates = domain.RecipeCandidates{Primary: intPtr(7)}

	exec := &manualExecutor{}
	docs := &stubDocs{}
	baker := &scriptedBaker{failures: map[int]error{7: longErr}, store: store}
	orch := bake.New(store, exec, docs, baker, nopLimiter{}, zap.NewNop(), bake.MetricHooks{}, 64)

	orch.HandlePublished(context.Background(), publishedEvt)
	exec.runAll()

	final := lastWrite(t, store)
	if len([]rune(final.Message)) > 64 {
		t.Fatalf("expected state message bounded to 64 runes, got %d", len([]rune(final.Message)))
	}
	if final.Message == "" {
		t.Fatal("expected a non-empty excerpt")
	}
}

func TestHandleStartupScan(t *testing.T) {
	f := newFixture(domain.RecipeCandidates{}, nil)
	f.store.Pending = 3

	if err := f.orch.HandleStartupScan(context.Background(), event.StartupScan{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.store.NotifyPendingErr = errors.New("database gone")
	if err := f.orch.HandleStartupScan(context.Background(), event.StartupScan{}); err == nil {
		t.Fatal("expected scan failure to surface as handler error")
	}
}

func TestHandlePublished_WrongEventType(t *testing.T) {
	f := newFixture(domain.RecipeCandidates{}, nil)
	if err := f.orch.HandlePublished(context.Background(), event.StartupScan{}); err == nil {
		t.Fatal("expected error for mismatched event type")
	}
}

func lastWrite(t *testing.T, store *repository.MockBakeStore) repository.StateWrite {
	t.Helper()
	writes := store.Writes()
	if len(writes) == 0 {
		t.Fatal("expected at least one state write")
	}
	return writes[len(writes)-1]
}
