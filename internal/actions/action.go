package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultActionTimeout = 5 * time.Minute

// ActionRunner вызывает внешние actions через action-сервис.
//
// Action непрозрачен для движка: runner отправляет ссылку и inputs,
// получает обратно exit status и outputs. Реализация action'а
// (checkout, upload-artifact, ...) живёт на стороне сервиса.
//
// Протокол: POST {base}/invoke
//
//	→ {"ref": "checkout@v4", "inputs": {...}, "env": {...}}
//	← {"exit_status": 0, "outputs": {...}, "log": "..."}
type ActionRunner struct {
	// BaseURL — адрес action-сервиса.
	BaseURL string

	// Client — HTTP-клиент.
	Client *http.Client
}

// NewActionRunner создаёт ActionRunner.
// Адрес берётся из ACTIONS_URL, с дефолтом для локальной разработки.
func NewActionRunner() *ActionRunner {
	baseURL := os.Getenv("ACTIONS_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return &ActionRunner{
		BaseURL: baseURL,
		Client:  &http.Client{},
	}
}

// invokeRequest — тело запроса к action-сервису.
type invokeRequest struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs,omitempty"`
	Env    map[string]string `json:"env,omitempty"`
}

// invokeResponse — тело ответа action-сервиса.
type invokeResponse struct {
	ExitStatus int               `json:"exit_status"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Log        string            `json:"log,omitempty"`
}

// Run вызывает внешний action.
func (r *ActionRunner) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	if inv.Ref == "" {
		return nil, ErrEmptyRef
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultActionTimeout)
		defer cancel()
	}

	body, err := json.Marshal(invokeRequest{
		Ref:    inv.Ref,
		Inputs: inv.Inputs,
		Env:    inv.Env,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrActionRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrActionRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActionRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrActionRequest, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrActionRequest, inv.Ref, resp.StatusCode)
	}

	var parsed invokeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrActionRequest, err)
	}

	outputs := parsed.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}

	return &Result{
		ExitStatus: parsed.ExitStatus,
		Outputs:    outputs,
		Log:        parsed.Log,
	}, nil
}
