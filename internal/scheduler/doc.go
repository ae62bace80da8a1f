// Package scheduler синтезирует schedule-события по cron-триггерам.
//
// Scheduler периодически сверяет cron-выражения активных pipelines
// с окном времени, прошедшим с предыдущего тика, и создаёт runs
// для сработавших триггеров.
//
// Структура:
//   - scheduler.go — основная логика (Tick, processPipeline)
//   - cron.go      — парсинг cron-выражений и вычисление срабатываний
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    PipelineRepo: pipelineRepo,
//	    RunRepo:      runRepo,
//	    Publisher:    publisher,  // опционально
//	    Logger:       logger,
//	})
//
//	// Вызывается каждый тик (обычно раз в 30 секунд)
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
// Метод Tick() вызывается только лидером.
package scheduler
