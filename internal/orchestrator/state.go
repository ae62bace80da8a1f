package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// RunState — состояние выполнения одного run в памяти.
//
// RunState создаётся, когда Orchestrator начинает обработку run,
// и удаляется при завершении (SUCCEEDED/FAILED/CANCELLED).
//
// Содержит:
//   - Кэш данных из БД (Run, PipelineVersion)
//   - Построенный граф jobs
//   - Instances каждого job (одна на job без matrix, по одной на комбинацию)
//   - Агрегатные результаты завершённых jobs для контекста needs.*
type RunState struct {
	// Run — данные run из БД.
	Run *domain.Run

	// Version — версия pipeline со спецификацией.
	Version *domain.PipelineVersion

	// Graph — граф зависимостей jobs.
	Graph *engine.Graph

	// instances — все instances run (instanceKey → instance).
	instances map[string]*domain.JobInstance

	// byJob — instances, сгруппированные по имени job.
	byJob map[string][]*domain.JobInstance

	// dispatched — jobs, уже отданные в работу или пропущенные.
	dispatched map[string]bool

	// terminal — jobs, все instances которых терминальны.
	terminal map[string]bool

	// needs — агрегатные результаты терминальных jobs.
	// Именно это видят downstream jobs как needs.<job>.*.
	needs map[string]domain.NeedResult

	mu sync.RWMutex
}

// NewRunState создаёт новый RunState.
func NewRunState(run *domain.Run, version *domain.PipelineVersion) *RunState {
	return &RunState{
		Run:        run,
		Version:    version,
		instances:  make(map[string]*domain.JobInstance),
		byJob:      make(map[string][]*domain.JobInstance),
		dispatched: make(map[string]bool),
		terminal:   make(map[string]bool),
		needs:      make(map[string]domain.NeedResult),
	}
}

// Initialize валидирует спецификацию и строит граф.
func (s *RunState) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec := &s.Version.Spec

	if err := engine.Validate(spec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPipelineSpec, err)
	}

	graph, err := engine.BuildGraph(spec)
	if err != nil {
		return err
	}
	s.Graph = graph

	return nil
}

// Materialize создаёт BLOCKED instances для всех jobs графа.
// Вызывается один раз после Initialize; результат сохраняется в БД
// одной транзакцией.
func (s *RunState) Materialize() []*domain.JobInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]*domain.JobInstance, 0, s.Graph.InstanceCount())
	for _, node := range s.Graph.Order {
		for _, combo := range node.Combos {
			inst := &domain.JobInstance{
				ID:          uuid.New(),
				RunID:       s.Run.ID,
				JobName:     node.Name,
				InstanceKey: combo.Key,
				Matrix:      combo.Values,
				Status:      domain.JobStatusBlocked,
				CreatedAt:   s.Run.CreatedAt,
			}
			s.addInstance(inst)
			created = append(created, inst)
		}
	}
	return created
}

// addInstance регистрирует instance. Вызывается под mu.
func (s *RunState) addInstance(inst *domain.JobInstance) {
	s.instances[inst.InstanceKey] = inst
	s.byJob[inst.JobName] = append(s.byJob[inst.JobName], inst)
}

// Instance возвращает instance по ключу.
func (s *RunState) Instance(key string) *domain.JobInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances[key]
}

// Instances возвращает instances job.
func (s *RunState) Instances(jobName string) []*domain.JobInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byJob[jobName]
}

// ApplyInstanceResult применяет терминальный результат instance,
// пришедший от worker'а. Возвращает true, если job стал терминальным
// агрегатно (все его instances завершились) — сигнал пересчитать
// готовность downstream jobs.
func (s *RunState) ApplyInstanceResult(inst *domain.JobInstance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.instances[inst.InstanceKey]
	if !ok {
		return false
	}
	existing.Status = inst.Status
	existing.Outputs = inst.Outputs
	existing.Error = inst.Error
	existing.StartedAt = inst.StartedAt
	existing.FinishedAt = inst.FinishedAt

	return s.refreshJobTerminal(inst.JobName)
}

// MarkJobSkipped переводит все нетерминальные instances job в SKIPPED
// и фиксирует агрегатный результат. Возвращает пропущенные instances
// для сохранения в БД.
func (s *RunState) MarkJobSkipped(jobName, reason string) []*domain.JobInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	skipped := make([]*domain.JobInstance, 0)
	for _, inst := range s.byJob[jobName] {
		if inst.Status.IsTerminal() {
			continue
		}
		inst.MarkSkipped(reason)
		skipped = append(skipped, inst)
	}
	s.dispatched[jobName] = true
	s.refreshJobTerminal(jobName)
	return skipped
}

// MarkInstancePending переводит instance в PENDING с payload.
func (s *RunState) MarkInstancePending(key string, payload *domain.JobPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst, ok := s.instances[key]; ok {
		inst.MarkPending(payload)
	}
}

// MarkInstanceSkipped пропускает один instance (условие вернуло false).
// Возвращает true, если job стал терминальным агрегатно.
func (s *RunState) MarkInstanceSkipped(key, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[key]
	if !ok {
		return false
	}
	inst.MarkSkipped(reason)
	return s.refreshJobTerminal(inst.JobName)
}

// MarkInstanceFailed роняет один instance ещё до диспетчеризации
// (ошибка вычисления условия). Возвращает true, если job терминален.
func (s *RunState) MarkInstanceFailed(key, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[key]
	if !ok {
		return false
	}
	inst.MarkFailed(errMsg)
	return s.refreshJobTerminal(inst.JobName)
}

// SkipRemaining пропускает все нетерминальные instances run (отмена).
// Возвращает затронутые instances для сохранения в БД.
func (s *RunState) SkipRemaining(reason string) []*domain.JobInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	skipped := make([]*domain.JobInstance, 0)
	for _, node := range s.Graph.Order {
		touched := false
		for _, inst := range s.byJob[node.Name] {
			if inst.Status.IsTerminal() {
				continue
			}
			inst.MarkSkipped(reason)
			skipped = append(skipped, inst)
			touched = true
		}
		if touched {
			s.dispatched[node.Name] = true
			s.refreshJobTerminal(node.Name)
		}
	}
	return skipped
}

// refreshJobTerminal пересчитывает агрегатный статус job.
// Вызывается под mu. Возвращает true, если job терминален.
func (s *RunState) refreshJobTerminal(jobName string) bool {
	if s.terminal[jobName] {
		return true
	}

	insts := s.byJob[jobName]
	for _, inst := range insts {
		if !inst.Status.IsTerminal() {
			return false
		}
	}

	s.terminal[jobName] = true
	s.needs[jobName] = aggregateResult(insts)
	return true
}

// aggregateResult сводит результаты instances job в один NeedResult.
//
// Fan-in по matrix: job FAILED, если упал хотя бы один instance;
// SKIPPED, если пропущены все; иначе SUCCEEDED. Outputs instances
// сливаются в порядке instance key, первый записанный ключ побеждает.
func aggregateResult(insts []*domain.JobInstance) domain.NeedResult {
	anyFailed := false
	anySucceeded := false
	for _, inst := range insts {
		switch inst.Status {
		case domain.JobStatusFailed:
			anyFailed = true
		case domain.JobStatusSucceeded:
			anySucceeded = true
		}
	}

	result := string(domain.JobStatusSkipped)
	if anyFailed {
		result = string(domain.JobStatusFailed)
	} else if anySucceeded {
		result = string(domain.JobStatusSucceeded)
	}

	keys := make([]string, 0, len(insts))
	byKey := make(map[string]*domain.JobInstance, len(insts))
	for _, inst := range insts {
		keys = append(keys, inst.InstanceKey)
		byKey[inst.InstanceKey] = inst
	}
	sort.Strings(keys)

	outputs := make(map[string]string)
	for _, key := range keys {
		for name, value := range byKey[key].Outputs {
			if _, exists := outputs[name]; !exists {
				outputs[name] = value
			}
		}
	}

	return domain.NeedResult{Result: result, Outputs: outputs}
}

// ReadyJobs возвращает jobs, готовые к диспетчеризации:
// все needs терминальны, сам job ещё не отдан в работу.
func (s *RunState) ReadyJobs() []*engine.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Graph.ReadyJobs(s.terminal, s.dispatched)
}

// MarkDispatched помечает job как отданный в работу.
func (s *RunState) MarkDispatched(jobName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched[jobName] = true
}

// NeedResults возвращает агрегатные результаты needs для job.
func (s *RunState) NeedResults(node *engine.Node) map[string]domain.NeedResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string]domain.NeedResult, len(node.Needs))
	for _, dep := range node.Needs {
		if need, ok := s.needs[dep.Name]; ok {
			results[dep.Name] = need
		}
	}
	return results
}

// IsComplete проверяет, все ли jobs терминальны.
func (s *RunState) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Graph.IsComplete(s.terminal)
}

// HasFailed проверяет, есть ли упавшие instances.
func (s *RunState) HasFailed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inst := range s.instances {
		if inst.Status == domain.JobStatusFailed {
			return true
		}
	}
	return false
}

// FailedJobs возвращает ключи упавших instances (для текста ошибки run).
func (s *RunState) FailedJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for key, inst := range s.instances {
		if inst.Status == domain.JobStatusFailed {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// RunID возвращает ID run.
func (s *RunState) RunID() uuid.UUID {
	return s.Run.ID
}

// PipelineID возвращает ID pipeline.
func (s *RunState) PipelineID() uuid.UUID {
	return s.Run.PipelineID
}

// Stats возвращает статистику выполнения.
func (s *RunState) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RunStats{TotalInstances: len(s.instances)}
	for _, inst := range s.instances {
		switch inst.Status {
		case domain.JobStatusBlocked:
			stats.Blocked++
		case domain.JobStatusPending:
			stats.Pending++
		case domain.JobStatusRunning:
			stats.Running++
		case domain.JobStatusSucceeded:
			stats.Succeeded++
		case domain.JobStatusFailed:
			stats.Failed++
		case domain.JobStatusSkipped:
			stats.Skipped++
		}
	}
	return stats
}

// RunStats — статистика выполнения run по instances.
type RunStats struct {
	TotalInstances int
	Blocked        int
	Pending        int
	Running        int
	Succeeded      int
	Failed         int
	Skipped        int
}

// RestoreFromJobs восстанавливает состояние из instances в БД
// (после рестарта Orchestrator).
func (s *RunState) RestoreFromJobs(jobs []domain.JobInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range jobs {
		s.addInstance(&jobs[i])
	}

	// Восстанавливаем агрегаты и отметки диспетчеризации
	for _, node := range s.Graph.Order {
		anyMoved := false
		for _, inst := range s.byJob[node.Name] {
			if inst.Status != domain.JobStatusBlocked {
				anyMoved = true
				break
			}
		}
		if anyMoved {
			s.dispatched[node.Name] = true
		}
		s.refreshJobTerminal(node.Name)
	}
}
