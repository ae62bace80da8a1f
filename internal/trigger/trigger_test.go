package trigger

import (
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestClassify_BranchPush(t *testing.T) {
	ctx := Classify(domain.Event{
		Kind: domain.EventPush,
		Ref:  "refs/heads/release/1.4",
		SHA:  "abc123",
	})

	if !ctx.IsPush {
		t.Error("IsPush should be true")
	}
	if ctx.IsTagPush {
		t.Error("IsTagPush should be false")
	}
	if ctx.Branch != "release/1.4" {
		t.Errorf("expected branch release/1.4, got %q", ctx.Branch)
	}
	if ctx.TagName != "" {
		t.Errorf("TagName should be empty, got %q", ctx.TagName)
	}
	if ctx.SHA != "abc123" {
		t.Errorf("SHA should be carried, got %q", ctx.SHA)
	}
}

func TestClassify_TagPush(t *testing.T) {
	ctx := Classify(domain.Event{
		Kind: domain.EventPush,
		Ref:  "refs/tags/v1.4.2",
	})

	if !ctx.IsTagPush {
		t.Error("IsTagPush should be true")
	}
	if ctx.TagName != "v1.4.2" {
		t.Errorf("expected tag v1.4.2, got %q", ctx.TagName)
	}
	if ctx.Branch != "" {
		t.Errorf("Branch should be empty, got %q", ctx.Branch)
	}
}

func TestClassify_BareBranch(t *testing.T) {
	// Голое имя ветки синтезирует планировщик
	ctx := Classify(domain.Event{
		Kind: domain.EventSchedule,
		Ref:  "main",
	})

	if ctx.Branch != "main" {
		t.Errorf("expected branch main, got %q", ctx.Branch)
	}
	if ctx.IsPush {
		t.Error("schedule event is not a push")
	}
}

func TestEvaluate_PushBranchFilter(t *testing.T) {
	spec := &domain.TriggerSpec{
		Push: &domain.PushTrigger{Branches: []string{"main", "release/*"}},
	}

	tests := []struct {
		ref      string
		expected bool
	}{
		{"refs/heads/main", true},
		{"refs/heads/release/1.4", true},
		{"refs/heads/feature/x", false},
		{"refs/tags/v1.0.0", false}, // теги без фильтра tags не запускают
	}

	for _, tt := range tests {
		ok, _ := Evaluate(spec, domain.Event{Kind: domain.EventPush, Ref: tt.ref})
		if ok != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.ref, tt.expected, ok)
		}
	}
}

func TestEvaluate_PushAnyBranch(t *testing.T) {
	// Пустой branches — любая ветка
	spec := &domain.TriggerSpec{Push: &domain.PushTrigger{}}

	ok, _ := Evaluate(spec, domain.Event{Kind: domain.EventPush, Ref: "refs/heads/anything"})
	if !ok {
		t.Error("any branch should match empty filter")
	}

	ok, _ = Evaluate(spec, domain.Event{Kind: domain.EventPush, Ref: "refs/tags/v1.0.0"})
	if ok {
		t.Error("tag should not match without tags filter")
	}
}

func TestEvaluate_TagFilter(t *testing.T) {
	spec := &domain.TriggerSpec{
		Push: &domain.PushTrigger{Tags: []string{"v*"}},
	}

	ok, ctx := Evaluate(spec, domain.Event{Kind: domain.EventPush, Ref: "refs/tags/v2.0.0"})
	if !ok {
		t.Error("v2.0.0 should match v*")
	}
	if !ctx.IsTagPush || ctx.TagName != "v2.0.0" {
		t.Errorf("unexpected context: %+v", ctx)
	}

	ok, _ = Evaluate(spec, domain.Event{Kind: domain.EventPush, Ref: "refs/tags/nightly"})
	if ok {
		t.Error("nightly should not match v*")
	}
}

func TestEvaluate_PullRequest(t *testing.T) {
	spec := &domain.TriggerSpec{
		PullRequest: &domain.PullRequestTrigger{Branches: []string{"main"}},
	}

	ok, _ := Evaluate(spec, domain.Event{Kind: domain.EventPullRequest, Ref: "refs/heads/main"})
	if !ok {
		t.Error("pull_request to main should match")
	}

	ok, _ = Evaluate(spec, domain.Event{Kind: domain.EventPullRequest, Ref: "refs/heads/dev"})
	if ok {
		t.Error("pull_request to dev should not match")
	}

	// Push-событие не совпадает с pull_request-триггером
	ok, _ = Evaluate(spec, domain.Event{Kind: domain.EventPush, Ref: "refs/heads/main"})
	if ok {
		t.Error("push should not match pull_request-only spec")
	}
}

func TestEvaluate_Schedule(t *testing.T) {
	spec := &domain.TriggerSpec{
		Schedule: []domain.ScheduleTrigger{{Cron: "0 3 * * *"}},
	}

	ok, _ := Evaluate(spec, domain.Event{Kind: domain.EventSchedule, Ref: "main"})
	if !ok {
		t.Error("schedule event should match schedule trigger")
	}

	ok, _ = Evaluate(&domain.TriggerSpec{}, domain.Event{Kind: domain.EventSchedule, Ref: "main"})
	if ok {
		t.Error("schedule event should not match spec without schedule")
	}
}

func TestEvaluate_NilSpec(t *testing.T) {
	ok, _ := Evaluate(nil, domain.Event{Kind: domain.EventPush, Ref: "refs/heads/main"})
	if ok {
		t.Error("nil spec should never match")
	}
}

func TestEvaluate_InvalidGlob(t *testing.T) {
	// Невалидный глоб не совпадает ни с чем и не даёт панику
	spec := &domain.TriggerSpec{
		Push: &domain.PushTrigger{Branches: []string{"[invalid"}},
	}

	ok, _ := Evaluate(spec, domain.Event{Kind: domain.EventPush, Ref: "refs/heads/main"})
	if ok {
		t.Error("invalid glob should not match")
	}
}
