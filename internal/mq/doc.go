// Package mq — обвязка RabbitMQ: соединение с reconnect, топология,
// publisher и consumer.
//
// Топология:
//
//	conveyor.runs (direct)
//	├── runs.pending   [routing: pending]    → Orchestrator
//	└── runs.cancelled [routing: cancelled]  → Orchestrator
//
//	conveyor.jobs (direct)
//	├── jobs.ready     [routing: ready]      → Worker (DLQ: dlq.jobs)
//	└── jobs.completed [routing: completed]  → Orchestrator
//
//	conveyor.dlq (direct)
//	└── dlq.jobs [routing: jobs] — ручной разбор
package mq
