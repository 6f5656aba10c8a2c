// Package engine содержит движок выполнения workflow.
//
// Engine получает упорядоченный список шагов, создаёт run, выполняет
// шаги по одному через steps.Registry и ведёт лог run:
//   - engine.go   — Engine, Execute, диспетчеризация шагов
//   - recorder.go — запись LogEntry с неубывающим временем
//
// Первая ошибка шага останавливает run (fail-fast). Паника executor'а
// и неизвестный тип шага считаются обычной ошибкой шага.
package engine
