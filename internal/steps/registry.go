package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Stepflow/internal/domain"
)

// Registry — реестр типов шагов.
//
// Движок находит executor по типу шага только через реестр,
// поэтому новый тип добавляется одним вызовом Register.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.StepType]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.StepType]Executor),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными шагами.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewDelayStep())
	r.Register(NewHTTPCheckStep())
	return r
}

// Register регистрирует executor в реестре.
// Если executor с таким типом уже существует, он будет перезаписан.
func (r *Registry) Register(executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[executor.Type()] = executor
}

// Get возвращает executor по типу.
// Возвращает ErrUnknownStepType, если тип не зарегистрирован.
func (r *Registry) Get(stepType domain.StepType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, exists := r.executors[stepType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, stepType)
	}
	return executor, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(stepType domain.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[stepType]
	return exists
}

// Types возвращает список зарегистрированных типов шагов.
func (r *Registry) Types() []domain.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.StepType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Validate проверяет тип и конфигурацию шага перед сохранением.
func (r *Registry) Validate(stepType domain.StepType, config map[string]any) error {
	executor, err := r.Get(stepType)
	if err != nil {
		return err
	}
	if config == nil {
		config = map[string]any{}
	}
	return executor.Validate(config)
}
