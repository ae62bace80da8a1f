package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const outputTail = 2000

// ShellRunner выполняет shell-шаги через `sh -c`.
//
// Outputs шаг публикует через output-файл: путь передаётся в
// переменной CONVEYOR_OUTPUT, шаг пишет туда строки name=value.
type ShellRunner struct {
	// Shell — интерпретатор. Default: "sh".
	Shell string
}

// NewShellRunner создаёт ShellRunner.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{Shell: "sh"}
}

// Run выполняет shell-команду.
func (r *ShellRunner) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	if strings.TrimSpace(inv.Script) == "" {
		return nil, ErrEmptyScript
	}

	outputFile, err := os.CreateTemp("", "conveyor-output-*")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	outputPath := outputFile.Name()
	outputFile.Close()
	defer os.Remove(outputPath)

	cmd := exec.CommandContext(ctx, r.Shell, "-c", inv.Script)
	cmd.Env = append(os.Environ(), "CONVEYOR_OUTPUT="+outputPath)
	for name, value := range inv.Env {
		cmd.Env = append(cmd.Env, name+"="+value)
	}

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	runErr := cmd.Run()

	result := &Result{
		Outputs: map[string]string{},
		Log:     tail(combined.String(), outputTail),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitStatus = exitErr.ExitCode()
		} else {
			// Команда не запустилась — инфраструктурная ошибка
			return nil, fmt.Errorf("run script: %w", runErr)
		}
	}

	outputs, err := parseOutputFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	result.Outputs = outputs

	return result, nil
}

// parseOutputFile читает строки name=value из output-файла.
// Пустые строки и строки без '=' игнорируются.
func parseOutputFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok || name == "" {
			continue
		}
		outputs[name] = value
	}
	return outputs, nil
}

// tail возвращает последние maxLen байт строки.
func tail(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
