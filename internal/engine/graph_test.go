package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func specWithJobs(jobs map[string]domain.JobDef) *domain.PipelineSpec {
	return &domain.PipelineSpec{
		On:   domain.TriggerSpec{Push: &domain.PushTrigger{}},
		Jobs: jobs,
	}
}

func shellJob(needs ...string) domain.JobDef {
	return domain.JobDef{
		Needs: needs,
		Steps: []domain.StepDef{{Run: "true"}},
	}
}

func TestBuildGraph_SimpleChain(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build":  shellJob(),
		"test":   shellJob("build"),
		"deploy": shellJob("test"),
	})

	g, err := BuildGraph(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.Size())
	}

	// Проверяем корневые узлы
	if len(g.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(g.Roots))
	}
	if g.Roots[0].Name != "build" {
		t.Errorf("expected root build, got %s", g.Roots[0].Name)
	}

	// Проверяем зависимости
	test := g.GetNode("test")
	if len(test.Needs) != 1 || test.Needs[0].Name != "build" {
		t.Error("test should need build")
	}

	deploy := g.GetNode("deploy")
	if len(deploy.Needs) != 1 || deploy.Needs[0].Name != "test" {
		t.Error("deploy should need test")
	}
}

func TestBuildGraph_Diamond(t *testing.T) {
	// build → test-unit → deploy
	// build → test-e2e  → deploy
	spec := specWithJobs(map[string]domain.JobDef{
		"build":     shellJob(),
		"test-unit": shellJob("build"),
		"test-e2e":  shellJob("build"),
		"deploy":    shellJob("test-unit", "test-e2e"),
	})

	g, err := BuildGraph(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 4 {
		t.Errorf("expected 4 nodes, got %d", g.Size())
	}

	deploy := g.GetNode("deploy")
	if len(deploy.Needs) != 2 {
		t.Errorf("deploy should have 2 needs, got %d", len(deploy.Needs))
	}

	if g.GetNode("build").InDegree != 0 {
		t.Error("build should have InDegree 0")
	}
	if g.GetNode("test-unit").InDegree != 1 {
		t.Error("test-unit should have InDegree 1")
	}
	if g.GetNode("deploy").InDegree != 2 {
		t.Error("deploy should have InDegree 2")
	}
}

func TestBuildGraph_Cycle(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"a": shellJob("c"),
		"b": shellJob("a"),
		"c": shellJob("b"),
	})

	_, err := BuildGraph(spec)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestBuildGraph_UnknownNeed(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"test": shellJob("build"),
	})

	_, err := BuildGraph(spec)
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("expected ErrMissingDependency, got %v", err)
	}
}

func TestBuildGraph_DuplicateNeeds(t *testing.T) {
	// Дубликат в needs не должен давать двойной InDegree
	spec := specWithJobs(map[string]domain.JobDef{
		"build": shellJob(),
		"test":  shellJob("build", "build"),
	})

	g, err := BuildGraph(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.GetNode("test").InDegree != 1 {
		t.Errorf("expected InDegree 1, got %d", g.GetNode("test").InDegree)
	}
}

func TestBuildGraph_InstanceKeyCollision(t *testing.T) {
	// Буквальное имя job совпадает с ключом matrix-развёртки соседа:
	// два instance под одним ключом недопустимы
	spec := specWithJobs(map[string]domain.JobDef{
		"build": {
			Matrix: map[string][]string{"os": {"linux"}},
			Steps:  []domain.StepDef{{Run: "make"}},
		},
		"build (linux)": shellJob(),
	})

	_, err := BuildGraph(spec)
	if !errors.Is(err, ErrDuplicateInstanceKey) {
		t.Errorf("expected ErrDuplicateInstanceKey, got %v", err)
	}

	// Отклоняется уже на валидации определения
	if err := Validate(spec); !errors.Is(err, ErrDuplicateInstanceKey) {
		t.Errorf("expected ErrDuplicateInstanceKey from Validate, got %v", err)
	}
}

func TestBuildGraph_TopologicalOrder(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build":  shellJob(),
		"test":   shellJob("build"),
		"deploy": shellJob("test"),
	})

	g, err := BuildGraph(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := make(map[string]int, len(g.Order))
	for i, node := range g.Order {
		pos[node.Name] = i
	}

	if pos["build"] > pos["test"] || pos["test"] > pos["deploy"] {
		t.Errorf("order violates dependencies: %v", pos)
	}
}

func TestGraph_InstanceCount(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build": {
			Matrix: map[string][]string{
				"os":   {"linux", "darwin"},
				"arch": {"amd64", "arm64"},
			},
			Steps: []domain.StepDef{{Run: "make"}},
		},
		"deploy": shellJob("build"),
	})

	g, err := BuildGraph(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 2*2 instances для build + 1 для deploy
	if got := g.InstanceCount(); got != 5 {
		t.Errorf("expected 5 instances, got %d", got)
	}
}

func TestGraph_ReadyJobs(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build":  shellJob(),
		"lint":   shellJob(),
		"test":   shellJob("build"),
		"deploy": shellJob("test", "lint"),
	})

	g, err := BuildGraph(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	terminal := map[string]bool{}
	dispatched := map[string]bool{}

	// Изначально готовы только корни
	ready := names(g.ReadyJobs(terminal, dispatched))
	if len(ready) != 2 || !ready["build"] || !ready["lint"] {
		t.Errorf("expected build and lint ready, got %v", ready)
	}

	// Диспетчеризованные не возвращаются повторно
	dispatched["build"] = true
	dispatched["lint"] = true
	if got := g.ReadyJobs(terminal, dispatched); len(got) != 0 {
		t.Errorf("expected no ready jobs, got %d", len(got))
	}

	// build терминален — test готов
	terminal["build"] = true
	ready = names(g.ReadyJobs(terminal, dispatched))
	if len(ready) != 1 || !ready["test"] {
		t.Errorf("expected test ready, got %v", ready)
	}

	// Все needs deploy терминальны
	terminal["test"] = true
	terminal["lint"] = true
	dispatched["test"] = true
	ready = names(g.ReadyJobs(terminal, dispatched))
	if len(ready) != 1 || !ready["deploy"] {
		t.Errorf("expected deploy ready, got %v", ready)
	}
}

func TestGraph_IsComplete(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build": shellJob(),
		"test":  shellJob("build"),
	})

	g, err := BuildGraph(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	terminal := map[string]bool{"build": true}
	if g.IsComplete(terminal) {
		t.Error("graph should not be complete")
	}

	terminal["test"] = true
	if !g.IsComplete(terminal) {
		t.Error("graph should be complete")
	}
}

func TestGraph_TransitiveNeeds(t *testing.T) {
	spec := specWithJobs(map[string]domain.JobDef{
		"build":  shellJob(),
		"test":   shellJob("build"),
		"deploy": shellJob("test"),
	})

	g, err := BuildGraph(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closure := g.TransitiveNeeds("deploy")
	if len(closure) != 2 || !closure["test"] || !closure["build"] {
		t.Errorf("expected {test, build}, got %v", closure)
	}

	if len(g.TransitiveNeeds("build")) != 0 {
		t.Error("build should have empty closure")
	}
}

func names(nodes []*Node) map[string]bool {
	m := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		m[n.Name] = true
	}
	return m
}
