// Package cli реализует инструмент командной строки Stepflow.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Stepflow API.
// Работает через HTTP и не импортирует internal/api: типы ответов
// продублированы в client.go. Исключение — команда exec, которая
// выполняет workflow из YAML-файла локально, на том же engine,
// что и сервер.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Stepflow API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок (APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	workflows, err := client.ListWorkflows(ctx)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: stepflow workflow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workflow: list, create, show, update, delete
//   - step: add, move, delete
//   - run: start, show, list
//   - logs
//   - schedule: list, create, show, delete, enable, disable
//   - exec -f FILE
//
// Каждая группа создаётся через фабричную функцию (NewWorkflowCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
