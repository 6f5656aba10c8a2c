package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Workflow — именованная упорядоченная последовательность шагов.
//
// Workflow — это определение, а не выполнение. Каждый запуск
// создаёт отдельный Run со своим логом.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — имя workflow (обязательно, до 255 символов).
	Name string `json:"name"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowSummary — workflow с количеством шагов, для списков.
type WorkflowSummary struct {
	Workflow
	StepCount int `json:"step_count"`
}

// StepType — тип шага.
type StepType string

const (
	// StepTypeDelay — фиксированная задержка.
	StepTypeDelay StepType = "delay"

	// StepTypeHTTPCheck — проверка доступности URL.
	StepTypeHTTPCheck StepType = "http_check"
)

// Step — определение шага внутри workflow.
type Step struct {
	// ID — уникальный идентификатор шага.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на родительский workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Type — тип шага, определяет executor.
	Type StepType `json:"type"`

	// Config — конфигурация шага (зависит от типа).
	// Для delay: seconds
	// Для http_check: url
	Config map[string]any `json:"config"`

	// Order — позиция шага в workflow, начиная с 0.
	// Уникальна и непрерывна в рамках workflow.
	Order int `json:"order"`

	// CreatedAt — время создания шага.
	CreatedAt time.Time `json:"created_at"`
}

// SortSteps возвращает копию шагов, отсортированную по Order.
// Сортировка стабильная: шаги с одинаковым Order сохраняют исходный порядок.
func SortSteps(steps []Step) []Step {
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

// Direction — направление перемещения шага.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// IsValid проверяет направление.
func (d Direction) IsValid() bool {
	return d == DirectionUp || d == DirectionDown
}
