package steps

import (
	"context"
	"time"
)

// Clock — источник времени и примитив ожидания.
//
// Движок и шаги не вызывают time.Now/time.Sleep напрямую,
// чтобы в тестах можно было подставить фальшивые часы.
type Clock interface {
	Now() time.Time

	// Sleep блокирует до истечения d или отмены ctx.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock — реальные часы.
type SystemClock struct{}

// Now возвращает текущее время.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep ждёт d с учётом отмены контекста.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
