package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Stepflow/internal/domain"
)

const (
	// MaxDelaySeconds — верхняя граница задержки.
	// Большие значения молча урезаются до неё, а не отклоняются.
	MaxDelaySeconds = 2

	configSeconds = "seconds"
)

// DelayStep — шаг задержки.
//
// Приостанавливает выполнение run на config.seconds секунд,
// но не дольше MaxDelaySeconds.
//
// Конфигурация:
//
//	{"seconds": 1}
type DelayStep struct{}

// NewDelayStep создаёт новый DelayStep.
func NewDelayStep() *DelayStep {
	return &DelayStep{}
}

// Type возвращает тип шага.
func (s *DelayStep) Type() domain.StepType {
	return domain.StepTypeDelay
}

// Validate проверяет наличие и формат seconds.
func (s *DelayStep) Validate(config map[string]any) error {
	_, err := parseSeconds(config)
	return err
}

// Execute выполняет задержку.
func (s *DelayStep) Execute(ctx context.Context, req *Request) error {
	seconds, err := parseSeconds(req.Config)
	if err != nil {
		return err
	}

	seconds = ClampDelay(seconds)
	req.logf(domain.LogLevelInfo, "Delaying for %d second(s)", seconds)

	if err := req.clock().Sleep(ctx, time.Duration(seconds)*time.Second); err != nil {
		return fmt.Errorf("%w: %v", ErrStepCancelled, err)
	}

	req.logf(domain.LogLevelInfo, "Delay completed")
	return nil
}

// ClampDelay ограничивает задержку сверху значением MaxDelaySeconds.
func ClampDelay(seconds int) int {
	return min(seconds, MaxDelaySeconds)
}

func parseSeconds(config map[string]any) (int, error) {
	seconds, ok, err := GetConfigInt(config, configSeconds)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &ConfigError{
			StepType: domain.StepTypeDelay,
			Key:      configSeconds,
			Message:  "delay step requires 'seconds' in config",
		}
	}
	if seconds < 0 {
		return 0, fmt.Errorf("%w: 'seconds' must not be negative", ErrInvalidConfig)
	}
	return seconds, nil
}
