// Package steps содержит реализации типов шагов workflow.
//
// # Обзор
//
// Каждый тип шага реализует интерфейс Executor:
//
//	type Executor interface {
//	    Type() domain.StepType
//	    Validate(config map[string]any) error
//	    Execute(ctx context.Context, req *Request) error
//	}
//
// Execute возвращает nil при успехе и error при неудаче шага.
// Всё, что шаг хочет сообщить пользователю, он пишет через Request.Log:
// записи попадают в лог run с привязкой к шагу.
//
// # Registry
//
//	registry := steps.DefaultRegistry() // delay, http_check
//	executor, err := registry.Get(domain.StepTypeDelay)
//	if errors.Is(err, steps.ErrUnknownStepType) {
//	    // неизвестный тип
//	}
//
// Новый тип шага: реализовать Executor и вызвать registry.Register.
// Движок менять не нужно.
//
// # Типы шагов
//
// ## delay (delay.go)
//
//	{"seconds": 1}
//
// Задержка урезается до MaxDelaySeconds (2 секунды). Ожидание идёт через
// Clock, поэтому в тестах реального сна нет.
//
// ## http_check (http_check.go)
//
//	{"url": "https://example.com"}
//
// Один GET с таймаутом 2 секунды. Любой HTTP-код — успех шага
// (2xx → info, иначе warn). Сетевая ошибка — неудача шага.
//
// # Ошибки
//
//   - ErrInvalidConfig — отсутствует или некорректен ключ конфигурации
//   - ErrUnknownStepType — тип не зарегистрирован
//   - ErrHTTPRequest — сетевая ошибка http_check
//   - ErrStepCancelled — контекст отменён во время ожидания
//   - ErrStepPanicked — executor запаниковал (оборачивает движок)
package steps
