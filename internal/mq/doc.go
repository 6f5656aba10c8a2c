// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect и graceful shutdown
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация run.requested и run.finished
//   - consumer.go   — потребление сообщений с ack/nack и DLQ
//
// Типы сообщений:
//   - run.requested — запрос на выполнение workflow (scheduler, API → worker)
//   - run.finished  — итог выполнения run (worker → подписчики)
//
// Exchanges:
//   - stepflow.runs — события runs
//   - stepflow.dlq  — dead letter queue
package mq
