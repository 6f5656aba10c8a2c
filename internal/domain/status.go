package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
//
// Переход из running происходит ровно один раз, финальные статусы
// больше не меняются.
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded — все шаги выполнены без ошибок.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed — один из шагов завершился ошибкой.
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус входит в известный набор.
func (s RunStatus) IsValid() bool {
	return s == RunStatusRunning || s.IsTerminal()
}

// LogLevel — уровень записи в логе run.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid проверяет, что уровень входит в известный набор.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}
