package memory

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Seed описывает начальное содержимое хранилища в памяти
type Seed struct {
	Sections []SeedSection `yaml:"sections"`
}

// SeedSection - раздел и число записей по статусам
type SeedSection struct {
	Handle  string         `yaml:"handle"`
	Name    string         `yaml:"name"`
	Entries map[string]int `yaml:"entries"`
}

// LoadSeedFile заполняет хранилище разделами и записями из YAML-файла
func (s *Store) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	return s.ApplySeed(seed)
}

// ApplySeed добавляет в хранилище разделы и записи
func (s *Store) ApplySeed(seed Seed) error {
	for _, section := range seed.Sections {
		if section.Handle == "" {
			return errors.New("seed section without handle")
		}

		name := section.Name
		if name == "" {
			name = section.Handle
		}
		collection := s.AddCollection(section.Handle, name)

		statuses := make([]string, 0, len(section.Entries))
		for status := range section.Entries {
			statuses = append(statuses, status)
		}
		slices.Sort(statuses)

		for _, status := range statuses {
			n := section.Entries[status]
			if n < 0 {
				return fmt.Errorf("section %s: negative entry count for status %s", section.Handle, status)
			}
			s.AddRecords(collection.ID, status, n)
		}
	}
	return nil
}
