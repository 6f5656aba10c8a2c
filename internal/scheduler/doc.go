// Package scheduler запрашивает runs по расписанию.
//
// Scheduler периодически находит schedules с истекшим next_due_at,
// публикует run.requested в RabbitMQ и сдвигает next_due_at.
//
// Структура:
//   - scheduler.go — Tick и обработка одного schedule
//   - cron.go      — cron-выражения, интервалы, валидация
//   - leader.go    — выбор лидера через pg_try_advisory_lock и цикл Run
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Schedules: scheduleRepo,
//	    Workflows: workflowRepo,
//	    Requester: publisher,
//	    Logger:    logger,
//	})
//
//	lock := scheduler.NewLeaderLock(pool, scheduler.LeaderLockKey)
//	err := sched.Run(ctx, lock, 5*time.Second)
//
// Тики выполняет только лидер: несколько экземпляров не запрашивают
// один и тот же слот дважды.
package scheduler
