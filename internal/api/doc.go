// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (хранилища, engine, очередь, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, metrics, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - workflow_handler.go — обработчики для /workflows
//   - step_handler.go     — обработчики для /workflows/{id}/steps
//   - run_handler.go      — обработчики для runs и /logs
//   - schedule_handler.go — обработчики для /schedules
//
// POST /workflows/{id}/runs выполняет workflow синхронно в рамках
// запроса. Отключение клиента не прерывает уже начатый run.
package api
