// Package worker выполняет runs по запросам из RabbitMQ.
//
// # Обзор
//
// Worker — stateless компонент системы Stepflow. Он потребляет
// сообщения run.requested из очереди runs.requested, загружает шаги
// workflow и передаёт их engine. Итог run публикуется engine через
// Notifier в runs.finished.
//
//	w := worker.New(worker.Config{
//	    Workflows: workflowRepo,
//	    Engine:    eng,
//	    Conn:      mqConn,
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Подтверждение сообщений
//
//   - run выполнен (в любом статусе) — ack
//   - у workflow нет шагов — ack без run
//   - workflow не найден, сообщение не разбирается — DLQ
//   - ошибка хранилища до создания run — один повтор, затем DLQ
//
// Retry шагов внутри run не выполняется: первая ошибка шага
// завершает run со статусом failed.
package worker
