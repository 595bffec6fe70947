package domain

// FlowDocument — сериализованная форма flow.
//
// Формат:
//
//	{
//	    "flowId": "flow_1",
//	    "tasks": [
//	        {"taskId": "producer", "taskType": "constant", "params": {"value": "x"}}
//	    ],
//	    "connections": ["producer.out->consumer.in"]
//	}
//
// Значения портов не сохраняются: это состояние выполнения, а не структура графа.
type FlowDocument struct {
	// FlowID — идентификатор flow, уникальный в рамках Manager.
	FlowID string `json:"flowId"`

	// Tasks — tasks flow.
	Tasks []TaskDocument `json:"tasks"`

	// Connections — связи в формате "srcTask.srcPort->tgtTask.tgtPort".
	Connections []string `json:"connections"`
}

// TaskDocument — сериализованная форма task.
type TaskDocument struct {
	// TaskID — идентификатор task в рамках flow.
	TaskID string `json:"taskId"`

	// TaskType — имя типа, под которым task зарегистрирована в реестре.
	TaskType string `json:"taskType"`

	// Params — параметры task.
	Params map[string]any `json:"params,omitempty"`
}

// ManagerDocument — сериализованная коллекция flows.
type ManagerDocument struct {
	// Flows — все flows менеджера.
	Flows []FlowDocument `json:"flows"`

	// FlowCount — количество flows (информационное поле).
	FlowCount int `json:"flowCount"`
}
