// Package worker выполняет flows по запросам из RabbitMQ и по расписанию.
//
// # Обзор
//
// Worker потребляет очередь flows.execute (payload mq.FlowExecutePayload)
// и выполняет flow через Runner (*engine.Manager). Результат публикуется
// наблюдателем mq.EventPublisher, подключённым к flows менеджера.
//
// Подтверждение сообщений:
//
//	Success / Failed / Cancelled  → ack
//	неизвестный flow, битый payload → nack без requeue (DLQ)
//	остановка воркера во время flow → nack с requeue
//
// Worker.Trigger реализует scheduler.Trigger: cron-запуски выполняются
// в том же процессе.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Runner:         manager,
//	    Conn:           conn,
//	    Reload:         func(ctx context.Context) error { return manager.Load(ctx, store) },
//	    ReloadInterval: 30 * time.Second,
//	    Logger:         logger,
//	})
//	w.Start(ctx)
//	defer w.Stop()
package worker
