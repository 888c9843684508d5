package memory

import (
	"context"
	"slices"
	"sync"

	"data-chopper/internal/models/entities"
)

type storedRecord struct {
	entities.Record
	trashed bool
}

// Store - хранилище записей и коллекций в памяти процесса.
// Мягко удаленные записи не видны запросам, как и в PostgreSQL-реализации.
type Store struct {
	mu          sync.RWMutex
	collections []entities.Collection
	records     map[int64]*storedRecord
	nextID      int64
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{records: make(map[int64]*storedRecord)}
}

// AddCollection добавляет коллекцию и возвращает ее
func (s *Store) AddCollection(handle, name string) entities.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	c := entities.Collection{ID: s.nextID, Handle: handle, Name: name}
	s.collections = append(s.collections, c)
	return c
}

// AddRecords добавляет n записей со статусом status в коллекцию
func (s *Store) AddRecords(collectionID int64, status string, n int) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, n)
	for range n {
		s.nextID++
		s.records[s.nextID] = &storedRecord{Record: entities.Record{
			ID:           s.nextID,
			CollectionID: collectionID,
			Status:       status,
		}}
		ids = append(ids, s.nextID)
	}
	return ids
}

// State сообщает, существует ли запись и находится ли она в корзине
func (s *Store) State(id int64) (exists, trashed bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return false, false
	}
	return true, r.trashed
}

func (s *Store) GetAllCollections(_ context.Context) ([]entities.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.collections), nil
}

func (s *Store) GetCollectionByHandle(_ context.Context, handle string) (*entities.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.collections {
		if c.Handle == handle {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) CountByPartition(ctx context.Context, collectionID int64, status string) (int, error) {
	ids, err := s.IDsByPartition(ctx, collectionID, status)
	return len(ids), err
}

func (s *Store) DistinctStatuses(_ context.Context, collectionID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]string, 0)
	for _, r := range s.records {
		if r.CollectionID == collectionID && !r.trashed && !slices.Contains(statuses, r.Status) {
			statuses = append(statuses, r.Status)
		}
	}
	slices.Sort(statuses)
	return statuses, nil
}

func (s *Store) IDsByPartition(_ context.Context, collectionID int64, status string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0)
	for id, r := range s.records {
		if r.CollectionID == collectionID && r.Status == status && !r.trashed {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) FindByID(_ context.Context, id int64) (*entities.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok || r.trashed {
		return nil, nil
	}
	record := r.Record
	return &record, nil
}

func (s *Store) Delete(_ context.Context, record *entities.Record, hard bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[record.ID]
	if !ok {
		return false, nil
	}

	if hard {
		delete(s.records, record.ID)
		return true, nil
	}

	if r.trashed {
		return false, nil
	}
	r.trashed = true
	return true, nil
}
