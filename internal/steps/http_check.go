package steps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shaiso/Stepflow/internal/domain"
)

const (
	// DefaultHTTPCheckTimeout — таймаут одного запроса проверки.
	DefaultHTTPCheckTimeout = 2 * time.Second

	configURL = "url"

	// maxDrainBody — сколько байт тела ответа дочитываем, чтобы
	// соединение вернулось в пул.
	maxDrainBody = 64 * 1024
)

// HTTPCheckStep — шаг проверки доступности URL.
//
// Выполняет один GET-запрос. Любой полученный ответ считается успехом
// шага: код 2xx логируется на уровне info, остальные коды — на warn.
// Неудачей шага считаются только сетевые ошибки (таймаут, отказ
// соединения, DNS).
//
// Конфигурация:
//
//	{"url": "https://example.com/health"}
type HTTPCheckStep struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPCheckStep создаёт HTTPCheckStep с таймаутом по умолчанию.
func NewHTTPCheckStep() *HTTPCheckStep {
	return NewHTTPCheckStepWithTimeout(DefaultHTTPCheckTimeout)
}

// NewHTTPCheckStepWithTimeout создаёт HTTPCheckStep с заданным таймаутом.
func NewHTTPCheckStepWithTimeout(timeout time.Duration) *HTTPCheckStep {
	if timeout <= 0 {
		timeout = DefaultHTTPCheckTimeout
	}
	return &HTTPCheckStep{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Type возвращает тип шага.
func (s *HTTPCheckStep) Type() domain.StepType {
	return domain.StepTypeHTTPCheck
}

// Validate проверяет наличие и формат url.
func (s *HTTPCheckStep) Validate(config map[string]any) error {
	_, err := parseCheckURL(config)
	return err
}

// Execute выполняет проверку URL.
func (s *HTTPCheckStep) Execute(ctx context.Context, req *Request) error {
	target, err := parseCheckURL(req.Config)
	if err != nil {
		return err
	}

	req.logf(domain.LogLevelInfo, "Checking URL: %s", target)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		req.logf(domain.LogLevelError, "HTTP check failed: %v", err)
		return fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		req.logf(domain.LogLevelError, "HTTP check failed: %v", err)
		return fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBody))

	success := IsSuccessfulStatus(resp.StatusCode)
	level := domain.LogLevelInfo
	if !success {
		level = domain.LogLevelWarn
	}
	req.logf(level, "HTTP check completed. Status: %d, Success: %s", resp.StatusCode, yesNo(success))

	return nil
}

// IsSuccessfulStatus возвращает true для кодов 2xx.
func IsSuccessfulStatus(code int) bool {
	return code >= 200 && code < 300
}

func parseCheckURL(config map[string]any) (string, error) {
	raw, ok, err := GetConfigString(config, configURL)
	if err != nil {
		return "", err
	}
	if !ok || raw == "" {
		return "", &ConfigError{
			StepType: domain.StepTypeHTTPCheck,
			Key:      configURL,
			Message:  "http check step requires 'url' in config",
		}
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: 'url' must be an absolute http(s) URL, got %q", ErrInvalidConfig, raw)
	}
	return raw, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
