// Package scheduler запускает flows по cron-расписаниям (robfig/cron).
//
// Расписания задаются через TASKFLOW_SCHEDULES:
//
//	TASKFLOW_SCHEDULES="nightly_report=0 3 * * *;healthcheck=@every 5m"
//
// Поддерживаются 5-польные выражения, дескрипторы (@hourly, @every 1m)
// и префикс CRON_TZ=Europe/Moscow.
//
// Сам запуск делегируется Trigger: worker выполняет flow в процессе,
// другие процессы могут публиковать flow.execute в RabbitMQ.
//
// Запуски одного flow не накладываются (SkipIfStillRunning),
// паника в trigger перехватывается (Recover).
package scheduler
