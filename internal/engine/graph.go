package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Node — job в графе зависимостей.
//
// Граф строится на уровне имён jobs; matrix-развёртка хранится
// внутри узла списком комбинаций. Планировщик считает узел
// терминальным, когда терминальны все его instances.
type Node struct {
	// Name — имя job (ключ в PipelineSpec.Jobs и в needs).
	Name string

	// Def — определение job.
	Def *domain.JobDef

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// Needs — узлы, от которых зависит этот узел.
	Needs []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node

	// Combos — комбинации matrix. Ровно одна для job без matrix.
	Combos []MatrixCombo
}

// Graph — направленный ациклический граф jobs одного pipeline.
type Graph struct {
	// Nodes — все узлы (имя job → Node).
	Nodes map[string]*Node

	// Roots — узлы без зависимостей (точки входа).
	Roots []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildGraph строит граф зависимостей из PipelineSpec.
//
// Разворачивает matrix каждого job, связывает узлы по needs,
// проверяет на циклы (алгоритм Кана). Цикл или ссылка на
// несуществующий job — DefinitionError: run не стартует.
func BuildGraph(spec *domain.PipelineSpec) (*Graph, error) {
	g := &Graph{
		Nodes: make(map[string]*Node, len(spec.Jobs)),
	}

	// Первый проход: создаём узлы с развёрнутыми matrix
	for name := range spec.Jobs {
		def := spec.Jobs[name]
		combos, err := ExpandMatrix(name, &def)
		if err != nil {
			return nil, err
		}
		g.Nodes[name] = &Node{
			Name:   name,
			Def:    &def,
			Combos: combos,
		}
	}

	// Ключи instances уникальны в рамках run: job с буквальным именем
	// "build (linux)" рядом с matrix job "build" {os: [linux]} дал бы
	// две записи под одним ключом
	if err := checkInstanceKeys(g.Nodes); err != nil {
		return nil, err
	}

	// Второй проход: связываем по needs
	for name, node := range g.Nodes {
		for _, dep := range node.Def.Needs {
			depNode, exists := g.Nodes[dep]
			if !exists {
				return nil, NewValidationError(name, "needs",
					fmt.Sprintf("needs unknown job: %s", dep), ErrMissingDependency)
			}
			g.addEdge(depNode, node)
		}
	}

	g.findRoots()

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.Order = order

	return g, nil
}

// checkInstanceKeys проверяет уникальность ключей instances по всем
// jobs после развёртки matrix. Jobs обходятся в отсортированном
// порядке, чтобы ошибка была детерминированной.
func checkInstanceKeys(nodes map[string]*Node) error {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	owner := make(map[string]string)
	for _, name := range names {
		for _, combo := range nodes[name].Combos {
			if prev, exists := owner[combo.Key]; exists {
				return NewValidationError(name, "matrix",
					fmt.Sprintf("instance key %q collides with job %q", combo.Key, prev),
					ErrDuplicateInstanceKey)
			}
			owner[combo.Key] = name
		}
	}
	return nil
}

// addEdge добавляет ребро from → to.
// Дубликаты в needs не дают двойного учёта InDegree.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.Needs {
		if dep.Name == from.Name {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.Needs = append(to.Needs, from)
	to.InDegree++
}

// findRoots находит узлы без входящих рёбер.
func (g *Graph) findRoots() {
	g.Roots = make([]*Node, 0)
	for _, node := range g.Nodes {
		if node.InDegree == 0 {
			g.Roots = append(g.Roots, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ErrCyclicDependency, если обнаружен цикл.
func (g *Graph) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for name, node := range g.Nodes {
		inDegree[name] = node.InDegree
	}

	queue := make([]*Node, len(g.Roots))
	copy(queue, g.Roots)

	order := make([]*Node, 0, len(g.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.Name]--
			if inDegree[dependent.Name] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Не все узлы обработаны — есть цикл
	if len(order) != len(g.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// GetNode возвращает узел по имени job.
func (g *Graph) GetNode(name string) *Node {
	return g.Nodes[name]
}

// Size возвращает количество jobs в графе.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// InstanceCount возвращает суммарное количество instances после развёртки.
func (g *Graph) InstanceCount() int {
	n := 0
	for _, node := range g.Nodes {
		n += len(node.Combos)
	}
	return n
}

// ReadyJobs возвращает jobs, у которых все needs терминальны
// и которые ещё не были диспетчеризованы.
//
// terminal — имена jobs, достигших терминального агрегатного статуса.
// dispatched — имена jobs, уже отданных в работу (или пропущенных).
func (g *Graph) ReadyJobs(terminal, dispatched map[string]bool) []*Node {
	ready := make([]*Node, 0)

	for _, node := range g.Order {
		if terminal[node.Name] || dispatched[node.Name] {
			continue
		}

		allNeedsTerminal := true
		for _, dep := range node.Needs {
			if !terminal[dep.Name] {
				allNeedsTerminal = false
				break
			}
		}
		if allNeedsTerminal {
			ready = append(ready, node)
		}
	}

	return ready
}

// IsComplete проверяет, все ли jobs достигли терминального статуса.
func (g *Graph) IsComplete(terminal map[string]bool) bool {
	for name := range g.Nodes {
		if !terminal[name] {
			return false
		}
	}
	return true
}

// TransitiveNeeds возвращает транзитивное замыкание needs для job.
func (g *Graph) TransitiveNeeds(name string) map[string]bool {
	closure := make(map[string]bool)
	node, exists := g.Nodes[name]
	if !exists {
		return closure
	}

	stack := append([]*Node(nil), node.Needs...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if closure[cur.Name] {
			continue
		}
		closure[cur.Name] = true
		stack = append(stack, cur.Needs...)
	}
	return closure
}
