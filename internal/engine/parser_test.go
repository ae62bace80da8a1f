package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

const releaseYAML = `
name: release
on:
  push:
    branches: [main]
    tags: ["v*"]
env:
  REGISTRY: registry.local
jobs:
  build:
    matrix:
      os: [linux, darwin]
    steps:
      - id: compile
        run: make build TARGET=${{ matrix.os }}
    outputs:
      artifact: ${{ steps.compile.outputs.artifact }}
  publish:
    needs: [build]
    if: run.is_tag_push
    steps:
      - uses: docker-push@v2
        with:
          tag: ${{ run.tag_name }}
`

func TestParseSpec_Valid(t *testing.T) {
	spec, err := ParseSpec([]byte(releaseYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spec.Name != "release" {
		t.Errorf("expected name release, got %s", spec.Name)
	}
	if spec.On.Push == nil {
		t.Fatal("push trigger should be set")
	}
	if len(spec.On.Push.Branches) != 1 || spec.On.Push.Branches[0] != "main" {
		t.Errorf("unexpected branches: %v", spec.On.Push.Branches)
	}
	if len(spec.On.Push.Tags) != 1 || spec.On.Push.Tags[0] != "v*" {
		t.Errorf("unexpected tags: %v", spec.On.Push.Tags)
	}
	if spec.Env["REGISTRY"] != "registry.local" {
		t.Error("pipeline env should be parsed")
	}

	if len(spec.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(spec.Jobs))
	}

	build := spec.Jobs["build"]
	if len(build.Matrix["os"]) != 2 {
		t.Errorf("unexpected matrix: %v", build.Matrix)
	}
	if build.Outputs["artifact"] == "" {
		t.Error("outputs should be parsed")
	}

	publish := spec.Jobs["publish"]
	if len(publish.Needs) != 1 || publish.Needs[0] != "build" {
		t.Errorf("unexpected needs: %v", publish.Needs)
	}
	if !publish.Steps[0].IsAction() {
		t.Error("publish step should be an action")
	}
}

func TestParseSpec_UnknownField(t *testing.T) {
	// KnownFields: опечатка в ключе — ошибка, а не молчаливый пропуск
	yaml := `
on:
  push: {}
jobs:
  build:
    stepz:
      - run: make
`
	if _, err := ParseSpec([]byte(yaml)); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParseSpec_InvalidYAML(t *testing.T) {
	if _, err := ParseSpec([]byte("{{not yaml")); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestValidate_NoJobs(t *testing.T) {
	spec := &domain.PipelineSpec{
		On: domain.TriggerSpec{Push: &domain.PushTrigger{}},
	}
	if err := Validate(spec); !errors.Is(err, ErrNoJobs) {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}
}

func TestValidate_NoTriggers(t *testing.T) {
	spec := &domain.PipelineSpec{
		Jobs: map[string]domain.JobDef{
			"build": {Steps: []domain.StepDef{{Run: "make"}}},
		},
	}
	if err := Validate(spec); !errors.Is(err, ErrNoTriggers) {
		t.Errorf("expected ErrNoTriggers, got %v", err)
	}
}

func TestValidate_NoSteps(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build": {},
	})
	if err := Validate(spec); !errors.Is(err, ErrNoSteps) {
		t.Errorf("expected ErrNoSteps, got %v", err)
	}
}

func TestValidate_SelfDependency(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build": shellJob("build"),
	})
	if err := Validate(spec); !errors.Is(err, ErrSelfDependency) {
		t.Errorf("expected ErrSelfDependency, got %v", err)
	}
}

func TestValidate_AmbiguousStep(t *testing.T) {
	// И uses, и run
	spec := specWithJobs(map[string]domain.JobDef{
		"build": {Steps: []domain.StepDef{{Uses: "checkout@v4", Run: "make"}}},
	})
	if err := Validate(spec); !errors.Is(err, ErrAmbiguousStep) {
		t.Errorf("expected ErrAmbiguousStep, got %v", err)
	}

	// Ни одного
	spec = specWithJobs(map[string]domain.JobDef{
		"build": {Steps: []domain.StepDef{{Name: "empty"}}},
	})
	if err := Validate(spec); !errors.Is(err, ErrAmbiguousStep) {
		t.Errorf("expected ErrAmbiguousStep, got %v", err)
	}
}

func TestValidate_DuplicateStepID(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build": {Steps: []domain.StepDef{
			{ID: "s", Run: "make"},
			{ID: "s", Run: "make test"},
		}},
	})
	if err := Validate(spec); !errors.Is(err, ErrDuplicateStepID) {
		t.Errorf("expected ErrDuplicateStepID, got %v", err)
	}
}

func TestValidate_BadExpression(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build": {
			If:    "run.branch ==",
			Steps: []domain.StepDef{{Run: "make"}},
		},
	})
	err := Validate(spec)
	if !errors.Is(err, ErrExprSyntax) {
		t.Errorf("expected ErrExprSyntax, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatal("expected ValidationError")
	}
	if verr.Job != "build" || verr.Field != "if" {
		t.Errorf("unexpected location: job=%s field=%s", verr.Job, verr.Field)
	}
}

func TestValidate_Cycle(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"a": shellJob("b"),
		"b": shellJob("a"),
	})
	if err := Validate(spec); !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}
