// Package orchestrator управляет выполнением runs.
//
// Orchestrator отвечает за:
//   - Получение новых runs из очереди RabbitMQ
//   - Построение графа jobs и развёртку matrix
//   - Диспетчеризацию instances, когда все needs терминальны
//   - Вычисление условий jobs в момент готовности
//   - Каскадный пропуск downstream jobs при падениях и отменах
//   - Fan-in matrix-jobs и публикацию outputs в контекст needs
//   - Финализацию run (SUCCEEDED/FAILED/CANCELLED)
//
// Orchestrator — это "мозг" системы, который координирует выполнение.
package orchestrator
