package entities

// Collection - именованная группа записей (раздел)
type Collection struct {
	ID     int64  `db:"id" json:"id"`
	Handle string `db:"handle" json:"handle"`
	Name   string `db:"name" json:"name"`
}

// Record - запись коллекции со статусом
type Record struct {
	ID           int64  `db:"id" json:"id"`
	CollectionID int64  `db:"section_id" json:"collection_id"`
	Status       string `db:"status" json:"status"`
}

// PartitionPreview - расчет квоты для одного раздела без выбора записей
type PartitionPreview struct {
	Collection     string `json:"collection"`
	Status         string `json:"status"`
	Total          int    `json:"total"`
	Requested      int    `json:"requested"`
	Quota          int    `json:"quota"`
	LimitedByFloor bool   `json:"limited_by_floor"`
}

// ChopReport - результат планирования запуска
type ChopReport struct {
	RunID         string   `json:"run_id"`
	Mode          string   `json:"mode"`
	Collections   []string `json:"collections"`
	TasksQueued   int      `json:"tasks_queued"`
	EntriesQueued int      `json:"entries_queued"`
}
