// Package api реализует HTTP API сервиса.
//
// Поверхность:
//   - POST /api/v1/events — приём webhook-событий и fan-out по pipelines
//   - /api/v1/pipelines — регистрация YAML-определений и версии
//   - /api/v1/runs — просмотр, отмена, instances
//
// Маршрутизация — стандартный http.ServeMux с method-паттернами,
// middleware — Recovery и Logging.
package api
