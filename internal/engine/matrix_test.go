package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestExpandMatrix_NoMatrix(t *testing.T) {
	def := &domain.JobDef{Steps: []domain.StepDef{{Run: "make"}}}

	combos, err := ExpandMatrix("build", def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(combos) != 1 {
		t.Fatalf("expected 1 combo, got %d", len(combos))
	}
	if combos[0].Key != "build" {
		t.Errorf("expected key build, got %s", combos[0].Key)
	}
	if combos[0].Values != nil {
		t.Error("values should be nil without matrix")
	}
}

func TestExpandMatrix_TwoAxes(t *testing.T) {
	def := &domain.JobDef{
		Matrix: map[string][]string{
			"os":   {"linux", "darwin"},
			"arch": {"amd64", "arm64"},
		},
		Steps: []domain.StepDef{{Run: "make"}},
	}

	combos, err := ExpandMatrix("build", def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(combos) != 4 {
		t.Fatalf("expected 4 combos, got %d", len(combos))
	}

	// Оси сортируются: arch раньше os, ключи детерминированы
	expected := []string{
		"build (amd64, linux)",
		"build (amd64, darwin)",
		"build (arm64, linux)",
		"build (arm64, darwin)",
	}
	seen := make(map[string]bool)
	for _, c := range combos {
		seen[c.Key] = true
	}
	for _, key := range expected {
		if !seen[key] {
			t.Errorf("missing combo %q, got %v", key, seen)
		}
	}

	// Значения осей доступны по имени
	for _, c := range combos {
		if c.Values["os"] == "" || c.Values["arch"] == "" {
			t.Errorf("combo %q has incomplete values: %v", c.Key, c.Values)
		}
	}
}

func TestExpandMatrix_Deterministic(t *testing.T) {
	def := &domain.JobDef{
		Matrix: map[string][]string{
			"go": {"1.23", "1.24"},
			"os": {"linux"},
		},
		Steps: []domain.StepDef{{Run: "make"}},
	}

	first, err := ExpandMatrix("test", def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		again, err := ExpandMatrix("test", def)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for j := range first {
			if first[j].Key != again[j].Key {
				t.Fatalf("order not deterministic: %q vs %q", first[j].Key, again[j].Key)
			}
		}
	}
}

func TestExpandMatrix_EmptyAxis(t *testing.T) {
	def := &domain.JobDef{
		Matrix: map[string][]string{"os": {}},
		Steps:  []domain.StepDef{{Run: "make"}},
	}

	_, err := ExpandMatrix("build", def)
	if !errors.Is(err, ErrEmptyMatrixAxis) {
		t.Errorf("expected ErrEmptyMatrixAxis, got %v", err)
	}
}

func TestExpandMatrix_NoAxes(t *testing.T) {
	// "matrix: {}" — объявлен, но не содержит осей
	def := &domain.JobDef{
		Matrix: map[string][]string{},
		Steps:  []domain.StepDef{{Run: "make"}},
	}

	_, err := ExpandMatrix("build", def)
	if !errors.Is(err, ErrEmptyMatrix) {
		t.Errorf("expected ErrEmptyMatrix, got %v", err)
	}
}

func TestExpandMatrix_DuplicateValue(t *testing.T) {
	def := &domain.JobDef{
		Matrix: map[string][]string{"os": {"linux", "linux"}},
		Steps:  []domain.StepDef{{Run: "make"}},
	}

	_, err := ExpandMatrix("build", def)
	if !errors.Is(err, ErrDuplicateMatrixValue) {
		t.Errorf("expected ErrDuplicateMatrixValue, got %v", err)
	}
}
