// Package engine содержит движок pipeline: разбор определения
// и вычислительное ядро планирования.
//
// Включает:
//   - parser.go  — парсинг PipelineSpec из YAML и валидация
//   - graph.go   — граф зависимостей jobs (needs) и топологический порядок
//   - matrix.go  — декартова развёртка matrix в instances
//   - expr.go    — вычислитель ${{ }}-выражений
//   - context.go — снимок контекста для выражений
//
// Engine отвечает за понимание структуры pipeline и определение
// порядка выполнения jobs; сам он ничего не исполняет.
package engine
