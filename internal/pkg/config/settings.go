package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"data-chopper/internal/models/entities"
)

// Уровни логирования
const (
	LogLevelNone    = "none"
	LogLevelInfo    = "info"
	LogLevelVerbose = "verbose"
)

// AllKeyword в списке разделов или статусов означает отсутствие фильтра
const AllKeyword = "all"

// Settings содержит значения по умолчанию для планов удаления и правила безопасности
type Settings struct {
	DefaultPercent      int        `yaml:"defaultPercent"`
	MinimumEntries      int        `yaml:"minimumEntries"`
	DefaultStatuses     StringList `yaml:"defaultStatuses"`
	DefaultSections     StringList `yaml:"defaultSections"`
	AllowedEnvironments StringList `yaml:"allowedEnvironments"`
	BatchSize           int        `yaml:"batchSize"`
	DeleteMode          string     `yaml:"deleteMode"`
	LogLevel            string     `yaml:"logLevel"`
}

// DefaultSettings возвращает настройки по умолчанию
func DefaultSettings() Settings {
	return Settings{
		DefaultPercent:      90,
		MinimumEntries:      1,
		DefaultStatuses:     StringList{"live"},
		DefaultSections:     StringList{},
		AllowedEnvironments: StringList{"dev", "staging", "local"},
		BatchSize:           50,
		DeleteMode:          entities.DeleteModeSoft,
		LogLevel:            LogLevelInfo,
	}
}

// LoadFile накладывает на настройки значения из YAML-файла
func (s *Settings) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	// Неизвестные ключи - ошибка: опечатка не должна молча оставлять значение по умолчанию
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}

	s.normalize()
	return nil
}

func (s *Settings) applyEnv() error {
	var err error

	if s.DefaultPercent, err = getEnvInt("CHOP_DEFAULT_PERCENT", s.DefaultPercent); err != nil {
		return err
	}
	if s.MinimumEntries, err = getEnvInt("CHOP_MINIMUM_ENTRIES", s.MinimumEntries); err != nil {
		return err
	}
	if s.BatchSize, err = getEnvInt("CHOP_BATCH_SIZE", s.BatchSize); err != nil {
		return err
	}

	if value, ok := os.LookupEnv("CHOP_DEFAULT_STATUSES"); ok {
		s.DefaultStatuses = SplitList(value)
	}
	if value, ok := os.LookupEnv("CHOP_DEFAULT_SECTIONS"); ok {
		s.DefaultSections = SplitList(value)
	}
	if value, ok := os.LookupEnv("CHOP_ALLOWED_ENVIRONMENTS"); ok {
		s.AllowedEnvironments = SplitList(value)
	}

	s.DeleteMode = strings.ToLower(getEnv("CHOP_DELETE_MODE", s.DeleteMode))
	s.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", s.LogLevel))

	s.normalize()
	return nil
}

func (s *Settings) normalize() {
	s.DefaultStatuses = NormalizeFilter(s.DefaultStatuses)
	s.DefaultSections = NormalizeFilter(s.DefaultSections)
	s.AllowedEnvironments = SplitList(strings.Join(s.AllowedEnvironments, ","))
}

// Validate проверяет допустимые диапазоны настроек
func (s *Settings) Validate() error {
	var errs []error

	if s.DefaultPercent < 1 || s.DefaultPercent > 100 {
		errs = append(errs, fmt.Errorf("defaultPercent must be between 1 and 100, got %d", s.DefaultPercent))
	}
	if s.MinimumEntries < 0 {
		errs = append(errs, fmt.Errorf("minimumEntries must be >= 0, got %d", s.MinimumEntries))
	}
	if s.BatchSize < 1 || s.BatchSize > 1000 {
		errs = append(errs, fmt.Errorf("batchSize must be between 1 and 1000, got %d", s.BatchSize))
	}

	switch s.DeleteMode {
	case entities.DeleteModeSoft, entities.DeleteModeHard:
	default:
		errs = append(errs, fmt.Errorf("deleteMode must be %q or %q, got %q", entities.DeleteModeSoft, entities.DeleteModeHard, s.DeleteMode))
	}

	switch s.LogLevel {
	case LogLevelNone, LogLevelInfo, LogLevelVerbose:
	default:
		errs = append(errs, fmt.Errorf("logLevel must be one of none, info, verbose, got %q", s.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %w", errors.Join(errs...))
	}
	return nil
}

// StringList принимает в YAML как список, так и строку через запятую
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = SplitList(value.Value)
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = SplitList(strings.Join(items, ","))
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
	return nil
}

// SplitList разбирает строку через запятую, отбрасывая пустые элементы
func SplitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// NormalizeFilter возвращает пустой список, если среди элементов есть "all"
func NormalizeFilter(items []string) []string {
	out := []string{}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.EqualFold(item, AllKeyword) {
			return []string{}
		}
		out = append(out, item)
	}
	return out
}
