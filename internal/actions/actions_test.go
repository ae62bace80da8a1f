package actions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Registry ---

func TestRegistry_DefaultRunners(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get(KindRun); err != nil {
		t.Errorf("run kind should be registered: %v", err)
	}
	if _, err := r.Get(KindUses); err != nil {
		t.Errorf("uses kind should be registered: %v", err)
	}
	if _, err := r.Get("delay"); !errors.Is(err, ErrUnknownStepKind) {
		t.Errorf("expected ErrUnknownStepKind, got %v", err)
	}
}

// --- ShellRunner ---

func TestShellRunner_Success(t *testing.T) {
	r := NewShellRunner()

	result, err := r.Run(context.Background(), &Invocation{
		Script: "echo hello",
		Env:    map[string]string{"GREETING": "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ExitStatus != 0 {
		t.Errorf("expected exit 0, got %d", result.ExitStatus)
	}
	if !strings.Contains(result.Log, "hello") {
		t.Errorf("log should contain stdout, got %q", result.Log)
	}
}

func TestShellRunner_Env(t *testing.T) {
	r := NewShellRunner()

	result, err := r.Run(context.Background(), &Invocation{
		Script: `echo "stage=$STAGE"`,
		Env:    map[string]string{"STAGE": "prod"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Log, "stage=prod") {
		t.Errorf("env should reach the script, got %q", result.Log)
	}
}

func TestShellRunner_Outputs(t *testing.T) {
	r := NewShellRunner()

	result, err := r.Run(context.Background(), &Invocation{
		Script: `echo "version=1.4.2" >> "$CONVEYOR_OUTPUT"; echo "arch=amd64" >> "$CONVEYOR_OUTPUT"`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outputs["version"] != "1.4.2" {
		t.Errorf("expected version output, got %v", result.Outputs)
	}
	if result.Outputs["arch"] != "amd64" {
		t.Errorf("expected arch output, got %v", result.Outputs)
	}
}

func TestShellRunner_NonZeroExit(t *testing.T) {
	r := NewShellRunner()

	result, err := r.Run(context.Background(), &Invocation{
		Script: "echo failing; exit 3",
	})
	if err != nil {
		t.Fatalf("non-zero exit is not an infrastructure error: %v", err)
	}

	if result.ExitStatus != 3 {
		t.Errorf("expected exit 3, got %d", result.ExitStatus)
	}
	if !strings.Contains(result.Log, "failing") {
		t.Errorf("log should be captured on failure, got %q", result.Log)
	}
}

func TestShellRunner_EmptyScript(t *testing.T) {
	r := NewShellRunner()

	_, err := r.Run(context.Background(), &Invocation{Script: "   "})
	if !errors.Is(err, ErrEmptyScript) {
		t.Errorf("expected ErrEmptyScript, got %v", err)
	}
}

func TestParseOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	content := "version=1.4.2\n\nmalformed line\n=novalue\nurl=https://x/y?a=b\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	outputs, err := parseOutputFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(outputs) != 2 {
		t.Errorf("expected 2 outputs, got %v", outputs)
	}
	if outputs["version"] != "1.4.2" {
		t.Errorf("unexpected version: %q", outputs["version"])
	}
	// Значение может содержать '='
	if outputs["url"] != "https://x/y?a=b" {
		t.Errorf("unexpected url: %q", outputs["url"])
	}
}

func TestTail(t *testing.T) {
	if got := tail("short", 10); got != "short" {
		t.Errorf("short string should be unchanged, got %q", got)
	}

	long := strings.Repeat("x", 50) + "END"
	got := tail(long, 10)
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "END") {
		t.Errorf("tail should keep the end, got %q", got)
	}
}

// --- ActionRunner ---

func TestActionRunner_Success(t *testing.T) {
	var received invokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/invoke" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(invokeResponse{
			ExitStatus: 0,
			Outputs:    map[string]string{"sha": "abc123"},
			Log:        "checked out",
		})
	}))
	defer server.Close()

	r := &ActionRunner{BaseURL: server.URL, Client: server.Client()}

	result, err := r.Run(context.Background(), &Invocation{
		Ref:    "checkout@v4",
		Inputs: map[string]string{"ref": "main"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received.Ref != "checkout@v4" || received.Inputs["ref"] != "main" {
		t.Errorf("unexpected request: %+v", received)
	}
	if result.Outputs["sha"] != "abc123" {
		t.Errorf("unexpected outputs: %v", result.Outputs)
	}
	if result.Log != "checked out" {
		t.Errorf("unexpected log: %q", result.Log)
	}
}

func TestActionRunner_ActionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(invokeResponse{ExitStatus: 1, Log: "permission denied"})
	}))
	defer server.Close()

	r := &ActionRunner{BaseURL: server.URL, Client: server.Client()}

	result, err := r.Run(context.Background(), &Invocation{Ref: "deploy@v1"})
	if err != nil {
		t.Fatalf("action failure is not an infrastructure error: %v", err)
	}
	if result.ExitStatus != 1 {
		t.Errorf("expected exit 1, got %d", result.ExitStatus)
	}
}

func TestActionRunner_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := &ActionRunner{BaseURL: server.URL, Client: server.Client()}

	_, err := r.Run(context.Background(), &Invocation{Ref: "deploy@v1"})
	if !errors.Is(err, ErrActionRequest) {
		t.Errorf("expected ErrActionRequest, got %v", err)
	}
}

func TestActionRunner_EmptyRef(t *testing.T) {
	r := NewActionRunner()

	_, err := r.Run(context.Background(), &Invocation{})
	if !errors.Is(err, ErrEmptyRef) {
		t.Errorf("expected ErrEmptyRef, got %v", err)
	}
}

func TestActionRunner_NilOutputs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(invokeResponse{ExitStatus: 0})
	}))
	defer server.Close()

	r := &ActionRunner{BaseURL: server.URL, Client: server.Client()}

	result, err := r.Run(context.Background(), &Invocation{Ref: "noop@v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outputs == nil {
		t.Error("outputs should never be nil")
	}
}
