package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/Stepflow/internal/domain"
)

// Ошибки шагов.
var (
	// ErrUnknownStepType — тип шага не найден в реестре.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrHTTPRequest — HTTP-запрос не выполнен (сеть, DNS, таймаут).
	ErrHTTPRequest = errors.New("http request failed")

	// ErrStepCancelled — выполнение шага прервано отменой контекста.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrStepPanicked — executor запаниковал во время выполнения.
	ErrStepPanicked = errors.New("step panicked")
)

// ConfigError — ошибка конфигурации шага с готовым текстом для лога run.
// errors.Is(err, ErrInvalidConfig) возвращает true.
type ConfigError struct {
	StepType domain.StepType // тип шага
	Key      string          // ключ конфигурации
	Message  string          // описание ошибки
}

// Error реализует интерфейс error.
func (e *ConfigError) Error() string {
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Executor — интерфейс для типов шагов.
//
// Каждый тип шага (delay, http_check) реализует этот интерфейс
// и регистрируется в Registry под своим Type().
type Executor interface {
	// Type возвращает тип шага.
	Type() domain.StepType

	// Validate проверяет конфигурацию без выполнения шага.
	Validate(config map[string]any) error

	// Execute выполняет шаг. Ошибка означает неудачу шага,
	// текст ошибки попадает в лог run.
	Execute(ctx context.Context, req *Request) error
}

// LogFunc добавляет запись в лог run от имени текущего шага.
type LogFunc func(level domain.LogLevel, message string)

// Request — входные данные для выполнения шага.
type Request struct {
	// StepID — идентификатор шага.
	StepID uuid.UUID

	// Config — конфигурация шага.
	Config map[string]any

	// Log — запись в лог run. Может быть nil.
	Log LogFunc

	// Clock — часы и ожидание. Если nil, используется SystemClock.
	Clock Clock
}

// NewRequest создаёт новый Request.
func NewRequest(stepID uuid.UUID, config map[string]any, log LogFunc, clock Clock) *Request {
	if config == nil {
		config = make(map[string]any)
	}
	return &Request{
		StepID: stepID,
		Config: config,
		Log:    log,
		Clock:  clock,
	}
}

func (r *Request) logf(level domain.LogLevel, format string, args ...any) {
	if r.Log == nil {
		return
	}
	r.Log(level, fmt.Sprintf(format, args...))
}

func (r *Request) clock() Clock {
	if r.Clock == nil {
		return SystemClock{}
	}
	return r.Clock
}

// GetConfigString извлекает строковое значение из конфига.
// ok=false, если ключа нет; ошибка, если значение не строка.
func GetConfigString(config map[string]any, key string) (string, bool, error) {
	v, exists := config[key]
	if !exists || v == nil {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", true, fmt.Errorf("%w: '%s' must be a string, got %T", ErrInvalidConfig, key, v)
	}
	return strings.TrimSpace(s), true, nil
}

// GetConfigInt извлекает целое значение из конфига.
//
// Принимает числа из JSON (float64 без дробной части), int-типы,
// json.Number и числовые строки. Значения за пределами int насыщаются
// до math.MaxInt / math.MinInt. ok=false, если ключа нет.
func GetConfigInt(config map[string]any, key string) (int, bool, error) {
	v, exists := config[key]
	if !exists || v == nil {
		return 0, false, nil
	}

	invalid := fmt.Errorf("%w: '%s' must be an integer, got %v", ErrInvalidConfig, key, v)

	switch n := v.(type) {
	case int:
		return n, true, nil
	case int32:
		return int(n), true, nil
	case int64:
		return saturateInt64(n), true, nil
	case uint64:
		if n > math.MaxInt {
			return math.MaxInt, true, nil
		}
		return int(n), true, nil
	case float64:
		i, ok := wholeToInt(n)
		if !ok {
			return 0, true, invalid
		}
		return i, true, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return saturateInt64(i), true, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, true, invalid
		}
		i, ok := wholeToInt(f)
		if !ok {
			return 0, true, invalid
		}
		return i, true, nil
	case string:
		trimmed := strings.TrimSpace(n)
		if i, err := strconv.Atoi(trimmed); err == nil {
			return i, true, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, true, invalid
		}
		i, ok := wholeToInt(f)
		if !ok {
			return 0, true, invalid
		}
		return i, true, nil
	default:
		return 0, true, invalid
	}
}

// wholeToInt переводит конечное целое число с плавающей точкой в int
// с насыщением.
func wholeToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return saturateFloat(f), true
}

func saturateInt64(n int64) int {
	switch {
	case n > math.MaxInt:
		return math.MaxInt
	case n < math.MinInt:
		return math.MinInt
	default:
		return int(n)
	}
}

func saturateFloat(f float64) int {
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	default:
		return int(f)
	}
}
