package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// fakeRunner записывает вызовы и отдаёт подготовленные результаты.
type fakeRunner struct {
	calls   []*actions.Invocation
	results []*actions.Result
	err     error
}

func (f *fakeRunner) Run(_ context.Context, inv *actions.Invocation) (*actions.Result, error) {
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &actions.Result{Outputs: map[string]string{}}, nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result, nil
}

func testWorker(runner actions.Runner, secrets engine.SecretSource) *Worker {
	registry := actions.NewRegistry()
	registry.Register(actions.KindRun, runner)
	registry.Register(actions.KindUses, runner)

	return New(Config{
		Registry: registry,
		Secrets:  secrets,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func pendingJob(def domain.JobDef, payload domain.JobPayload) *domain.JobInstance {
	payload.Def = def
	return &domain.JobInstance{
		ID:          uuid.New(),
		RunID:       uuid.New(),
		JobName:     "job",
		InstanceKey: "job",
		Status:      domain.JobStatusPending,
		Payload:     &payload,
	}
}

func TestExecute_SequentialSteps(t *testing.T) {
	runner := &fakeRunner{
		results: []*actions.Result{
			{Outputs: map[string]string{"version": "1.4.2"}},
			{Outputs: map[string]string{}},
		},
	}
	w := testWorker(runner, nil)

	job := pendingJob(domain.JobDef{
		Steps: []domain.StepDef{
			{ID: "tag", Run: "git describe"},
			{Run: "make build VERSION=${{ steps.tag.outputs.version }}"},
		},
		Outputs: map[string]string{"version": "${{ steps.tag.outputs.version }}"},
	}, domain.JobPayload{})

	outputs, err := w.execute(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 step invocations, got %d", len(runner.calls))
	}

	// Outputs предыдущего шага видны следующему
	if runner.calls[1].Script != "make build VERSION=1.4.2" {
		t.Errorf("unexpected second script: %q", runner.calls[1].Script)
	}

	// Outputs job рендерятся над steps.* контекстом
	if outputs["version"] != "1.4.2" {
		t.Errorf("expected job output 1.4.2, got %q", outputs["version"])
	}
}

func TestExecute_StepFailureStopsJob(t *testing.T) {
	runner := &fakeRunner{
		results: []*actions.Result{
			{ExitStatus: 2, Log: "make: *** [build] Error 2"},
		},
	}
	w := testWorker(runner, nil)

	job := pendingJob(domain.JobDef{
		Steps: []domain.StepDef{
			{Run: "make build"},
			{Run: "make package"},
		},
	}, domain.JobPayload{})

	_, err := w.execute(context.Background(), job)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("expected ErrStepFailed, got %v", err)
	}

	// Оставшиеся шаги не выполняются
	if len(runner.calls) != 1 {
		t.Errorf("expected 1 invocation, got %d", len(runner.calls))
	}
}

func TestExecute_StepConditionSkipsStep(t *testing.T) {
	runner := &fakeRunner{}
	w := testWorker(runner, nil)

	job := pendingJob(domain.JobDef{
		Steps: []domain.StepDef{
			{Run: "echo always"},
			{If: "run.is_tag_push", Run: "make release"},
			{Run: "echo done"},
		},
	}, domain.JobPayload{
		Run: domain.RunContext{Event: domain.EventPush, IsPush: true},
	})

	_, err := w.execute(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Средний шаг пропущен, job продолжился
	if len(runner.calls) != 2 {
		t.Errorf("expected 2 invocations, got %d", len(runner.calls))
	}
}

func TestExecute_ConditionErrorFailsJob(t *testing.T) {
	runner := &fakeRunner{}
	w := testWorker(runner, nil)

	job := pendingJob(domain.JobDef{
		Steps: []domain.StepDef{
			{If: "needs.nothing.result == 'SUCCEEDED'", Run: "make"},
		},
	}, domain.JobPayload{})

	_, err := w.execute(context.Background(), job)
	if !errors.Is(err, engine.ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Error("step should not run after condition error")
	}
}

func TestExecute_EnvPrecedence(t *testing.T) {
	runner := &fakeRunner{}
	w := testWorker(runner, nil)

	job := pendingJob(domain.JobDef{
		Steps: []domain.StepDef{
			{Run: "deploy", Env: map[string]string{"STAGE": "step"}},
		},
	}, domain.JobPayload{
		Env: map[string]string{"STAGE": "job", "REGION": "eu"},
	})

	if _, err := w.execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := runner.calls[0].Env
	if env["STAGE"] != "step" {
		t.Errorf("step env should win, got %q", env["STAGE"])
	}
	if env["REGION"] != "eu" {
		t.Errorf("job env should be inherited, got %q", env["REGION"])
	}
}

func TestExecute_SecretsResolved(t *testing.T) {
	runner := &fakeRunner{}
	secrets := func(name string) (string, bool) {
		if name == "DEPLOY_TOKEN" {
			return "t0ken", true
		}
		return "", false
	}
	w := testWorker(runner, secrets)

	job := pendingJob(domain.JobDef{
		Steps: []domain.StepDef{
			{Run: "deploy", Env: map[string]string{"TOKEN": "${{ secrets.DEPLOY_TOKEN }}"}},
		},
	}, domain.JobPayload{})

	if _, err := w.execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runner.calls[0].Env["TOKEN"] != "t0ken" {
		t.Error("secret should be resolved into step env")
	}
}

func TestExecute_ActionStep(t *testing.T) {
	runner := &fakeRunner{}
	w := testWorker(runner, nil)

	job := pendingJob(domain.JobDef{
		Steps: []domain.StepDef{
			{Uses: "docker-push@v2", With: map[string]string{"tag": "${{ run.tag_name }}"}},
		},
	}, domain.JobPayload{
		Run: domain.RunContext{IsTagPush: true, TagName: "v1.4.2"},
	})

	if _, err := w.execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv := runner.calls[0]
	if inv.Ref != "docker-push@v2" {
		t.Errorf("unexpected ref: %q", inv.Ref)
	}
	if inv.Inputs["tag"] != "v1.4.2" {
		t.Errorf("inputs should be rendered, got %q", inv.Inputs["tag"])
	}
}

func TestExecute_NeedsOutputsAvailable(t *testing.T) {
	runner := &fakeRunner{}
	w := testWorker(runner, nil)

	job := pendingJob(domain.JobDef{
		Steps: []domain.StepDef{
			{Run: "publish ${{ needs.build.outputs.artifact }}"},
		},
	}, domain.JobPayload{
		Needs: map[string]domain.NeedResult{
			"build": {Result: "SUCCEEDED", Outputs: map[string]string{"artifact": "app.tar.gz"}},
		},
	})

	if _, err := w.execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runner.calls[0].Script != "publish app.tar.gz" {
		t.Errorf("unexpected script: %q", runner.calls[0].Script)
	}
}

func TestExecute_Timeout(t *testing.T) {
	slow := &slowRunner{delay: 50 * time.Millisecond}
	w := testWorker(slow, nil)

	job := pendingJob(domain.JobDef{
		TimeoutSec: 1,
		Steps: []domain.StepDef{
			{Run: "sleep"},
		},
	}, domain.JobPayload{})

	// Таймаут не истёк — job успешен
	if _, err := w.execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Передан уже отменённый контекст — job падает по таймауту
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.execute(ctx, job)
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Errorf("expected ErrExecutionTimeout, got %v", err)
	}
}

// slowRunner имитирует долгий шаг.
type slowRunner struct {
	delay time.Duration
}

func (s *slowRunner) Run(ctx context.Context, _ *actions.Invocation) (*actions.Result, error) {
	select {
	case <-time.After(s.delay):
		return &actions.Result{Outputs: map[string]string{}}, nil
	case <-ctx.Done():
		return &actions.Result{Outputs: map[string]string{}}, nil
	}
}
