package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

const (
	// TypeHTTP — task HTTP запроса.
	TypeHTTP = "http"

	// Значения по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Параметры HTTP task.
const (
	paramMethod          = "method"
	paramURL             = "url"
	paramHeaders         = "headers"
	paramBody            = "body"
	paramFollowRedirects = "follow_redirects"
	paramValidateSSL     = "validate_ssl"
	paramTimeoutSec      = "timeout_sec"
	paramFailOnStatus    = "fail_on_status"
)

// HTTPTask выполняет HTTP запрос.
//
// URL берётся из порта url (если подключён и не пуст), иначе из параметра url.
// Тело — из порта body, иначе из параметра body.
// Таймаут — собственный у task, движок таймаутов не накладывает.
//
// Параметры:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/data",
//	    "headers": {"Authorization": "Bearer xxx"},
//	    "body": {"key": "value"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 30,
//	    "fail_on_status": true
//	}
//
// Outputs: status_code, headers, body (разобранный JSON или строка), error.
type HTTPTask struct {
	*engine.BaseTask
}

// NewHTTPTask создаёт HTTPTask.
func NewHTTPTask() *HTTPTask {
	t := &HTTPTask{BaseTask: engine.NewBaseTask(TypeHTTP)}
	t.AddInputPort(paramURL, domain.ValueTypeString)
	t.AddInputPort(paramBody)
	t.AddOutputPort("status_code", domain.ValueTypeNumber)
	t.AddOutputPort("headers")
	t.AddOutputPort("body")
	t.AddOutputPort(PortError, domain.ValueTypeString)
	t.AddParam(paramMethod, http.MethodGet)
	return t
}

// Execute реализует engine.Task.
func (t *HTTPTask) Execute(ctx context.Context) domain.TaskState {
	cfg, err := t.config()
	if err != nil {
		return fail(t.BaseTask, err)
	}

	req, err := buildRequest(ctx, cfg)
	if err != nil {
		return fail(t.BaseTask, fmt.Errorf("build request: %w", err))
	}

	resp, err := buildClient(cfg).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(t.BaseTask, ctx.Err())
		}
		return fail(t.BaseTask, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	result, err := parseResponse(resp)
	if err != nil {
		return fail(t.BaseTask, err)
	}

	t.SetOutputValue("status_code", result.StatusCode)
	t.SetOutputValue("headers", result.Headers)
	t.SetOutputValue("body", result.Body)

	if cfg.FailOnStatus && resp.StatusCode >= 400 {
		return fail(t.BaseTask, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status})
	}
	return domain.TaskStateSuccess
}

// httpConfig — разобранные параметры HTTP task.
type httpConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	ValidateSSL     bool
	Timeout         time.Duration
	FailOnStatus    bool
}

func (t *HTTPTask) config() (*httpConfig, error) {
	body, _ := t.Param(paramBody)
	if in := t.InputValue(paramBody); in != nil {
		body = in
	}

	cfg := &httpConfig{
		Method:          strings.ToUpper(t.ParamString(paramMethod)),
		URL:             toString(t.InputValue(paramURL)),
		Headers:         paramStringMap(t.BaseTask, paramHeaders),
		Body:            body,
		FollowRedirects: t.ParamBool(paramFollowRedirects, true),
		ValidateSSL:     t.ParamBool(paramValidateSSL, true),
		Timeout:         defaultHTTPTimeout,
		FailOnStatus:    t.ParamBool(paramFailOnStatus, true),
	}

	if cfg.URL == "" {
		cfg.URL = t.ParamString(paramURL)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, TypeHTTP)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if sec := t.ParamInt(paramTimeoutSec); sec > 0 {
		cfg.Timeout = time.Duration(sec) * time.Second
	}

	// Копия, чтобы не менять map параметра при добавлении Content-Type
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers

	return cfg, nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
func buildClient(cfg *httpConfig) *http.Client {
	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.ValidateSSL,
			},
		},
	}
}

// buildRequest создаёт HTTP запрос.
func buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, hasContentType := cfg.Headers["Content-Type"]; !hasContentType {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// httpResult — разобранный HTTP ответ.
type httpResult struct {
	StatusCode int
	Headers    map[string]string
	Body       any
}

// parseResponse читает и разбирает HTTP ответ.
func parseResponse(resp *http.Response) (*httpResult, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			// Невалидный JSON возвращается строкой
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]string)
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return &httpResult{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
	}, nil
}

// HTTPError — ответ с HTTP статусом >= 400.
type HTTPError struct {
	StatusCode int
	Status     string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// IsHTTPError проверяет, является ли ошибка HTTP ошибкой.
func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}
