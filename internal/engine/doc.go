// Package engine содержит движок графа tasks.
//
// Включает:
//   - port.go, connection.go — порты tasks и связи между ними
//   - task.go     — интерфейс Task и встраиваемый BaseTask
//   - registry.go — реестр типов tasks (имя → фабрика)
//   - flow.go     — граф, проверка связей и выполнение
//   - order.go    — поиск циклов и топологический порядок по слоям (алгоритм Кана)
//   - codec.go    — JSON формат flow
//   - manager.go  — коллекция flows и её сохранение
//   - flow_registry.go — шаблоны flows (имя → FlowCreator)
//
// Выполнения одного flow идут по очереди; структурные изменения
// ждут окончания текущего выполнения.
//
// Tasks обмениваются значениями только через порты: input порт
// читает текущее значение output порта, к которому подключён.
// Движок не зависит от конкретных типов tasks и хранилищ.
package engine
