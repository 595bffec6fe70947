// Package telemetry — логирование и метрики выполнения flows.
//
//   - logging.go — slog логгер из LOG_LEVEL/LOG_FORMAT, логгер в context,
//     атрибуты flow_id, task_id, component
//   - metrics.go — Metrics, engine.Observer для Prometheus:
//     taskflow_flow_executions_total, taskflow_flow_duration_seconds,
//     taskflow_flows_running, taskflow_task_executions_total,
//     taskflow_task_duration_seconds
//
// Metrics подключается к flows через engine.WithObserver;
// taskflow-api и taskflow-worker отдают её на /metrics.
package telemetry
