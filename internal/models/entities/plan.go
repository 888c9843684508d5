package entities

import (
	"fmt"
	"sort"
	"strings"
)

// Режимы удаления записей
const (
	DeleteModeSoft = "soft"
	DeleteModeHard = "hard"
)

// Источники запуска
const (
	OriginCLI = "cli"
	OriginWeb = "web"
	OriginAPI = "api"
)

// ChopPlan описывает полностью разрешенную конфигурацию одного запуска.
// После валидации план не изменяется до конца запуска.
type ChopPlan struct {
	CollectionHandles []string `json:"collection_handles"`
	Percent           int      `json:"percent"`
	Statuses          []string `json:"statuses"`
	MinimumRetained   int      `json:"minimum_retained"`
	SoftDelete        bool     `json:"soft_delete"`
	DryRun            bool     `json:"dry_run"`
	Verbose           bool     `json:"verbose"`
	Origin            string   `json:"origin,omitempty"`
}

// Validate проверяет корректность плана и возвращает *ValidationError со всеми ошибками по полям
func (p *ChopPlan) Validate() error {
	verr := &ValidationError{}

	if p.Percent < 1 || p.Percent > 100 {
		verr.Add("percent", "must be between 1 and 100")
	}

	if p.MinimumRetained < 0 {
		verr.Add("minimum_retained", "must be greater than or equal to 0")
	}

	for _, handle := range p.CollectionHandles {
		if strings.TrimSpace(handle) == "" {
			verr.Add("collection_handles", "must not contain blank handles")
			break
		}
	}

	for _, status := range p.Statuses {
		if strings.TrimSpace(status) == "" {
			verr.Add("statuses", "must not contain blank statuses")
			break
		}
	}

	if !verr.HasErrors() {
		return nil
	}
	return verr
}

// DeleteMode возвращает режим удаления в виде строки настроек
func (p *ChopPlan) DeleteMode() string {
	if p.SoftDelete {
		return DeleteModeSoft
	}
	return DeleteModeHard
}

// Mode возвращает человекочитаемый режим запуска
func (p *ChopPlan) Mode() string {
	if p.DryRun {
		return "DRY RUN"
	}
	return "LIVE"
}

// Summary возвращает краткое описание плана для логов и подтверждения
func (p *ChopPlan) Summary() string {
	parts := make([]string, 0, 7)

	if len(p.CollectionHandles) > 0 {
		parts = append(parts, "sections: "+strings.Join(p.CollectionHandles, ", "))
	} else {
		parts = append(parts, "sections: all")
	}

	parts = append(parts, fmt.Sprintf("delete: %d%%", p.Percent))

	if len(p.Statuses) > 0 {
		parts = append(parts, "statuses: "+strings.Join(p.Statuses, ", "))
	}

	parts = append(parts, fmt.Sprintf("min keep: %d", p.MinimumRetained))
	parts = append(parts, p.DeleteMode()+" delete")

	if p.DryRun {
		parts = append(parts, "DRY RUN")
	}

	if p.Origin != "" {
		parts = append(parts, "via "+p.Origin)
	}

	return strings.Join(parts, ", ")
}

// Clone возвращает копию плана, не разделяющую срезы с оригиналом
func (p ChopPlan) Clone() ChopPlan {
	clone := p
	clone.CollectionHandles = append([]string(nil), p.CollectionHandles...)
	clone.Statuses = append([]string(nil), p.Statuses...)
	return clone
}

// ValidationError перечисляет ошибки валидации по полям
type ValidationError struct {
	Fields map[string][]string `json:"fields"`
}

// Add добавляет сообщение об ошибке для поля
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// HasErrors сообщает, есть ли хотя бы одна ошибка
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, field+": "+strings.Join(e.Fields[field], ", "))
	}
	return "invalid chop plan: " + strings.Join(msgs, "; ")
}

// ChopOption изменяет план, собранный для ChopEntries
type ChopOption func(*ChopPlan)

// WithMinimumRetained задает минимальное число сохраняемых записей в разделе
func WithMinimumRetained(n int) ChopOption {
	return func(p *ChopPlan) { p.MinimumRetained = n }
}

// WithStatuses ограничивает удаление перечисленными статусами
func WithStatuses(statuses ...string) ChopOption {
	return func(p *ChopPlan) { p.Statuses = statuses }
}

// WithDryRun включает режим симуляции
func WithDryRun(dryRun bool) ChopOption {
	return func(p *ChopPlan) { p.DryRun = dryRun }
}
