// Package worker выполняет job instances.
//
// Worker получает instance из очереди jobs.ready (или через polling),
// атомарно забирает его и выполняет шаги последовательно:
//   - условие шага вычисляется над актуальным steps.* контекстом
//   - run-шаги уходят в ShellRunner, uses-шаги — в ActionRunner
//   - первый упавший шаг прерывает job
//   - outputs job рендерятся в конце и публикуются для downstream jobs
//
// Секреты подставляются из локального источника worker'а —
// в payload и в БД они не попадают.
package worker
