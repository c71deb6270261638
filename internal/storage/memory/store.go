package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg       domain.OutboxMessage
	processed bool
	failedAt  time.Time
}

func (r *outboxRecord) pending() bool {
	return !r.processed && r.failedAt.IsZero()
}

// Store — общее in-memory хранилище. Репозитории получают его явно через конструктор,
// поэтому несколько Store в одном процессе не видят данные друг друга.
type Store struct {
	mu        sync.RWMutex
	customers map[string]domain.CustomerSnapshot
	outbox    []*outboxRecord
	outboxIdx map[string]*outboxRecord
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		customers: make(map[string]domain.CustomerSnapshot),
		outbox:    make([]*outboxRecord, 0),
		outboxIdx: make(map[string]*outboxRecord),
	}
}

// CustomerCount возвращает число сохранённых клиентов.
func (s *Store) CustomerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.customers)
}

// appendOutboxLocked добавляет сообщения в конец outbox. Вызывается под s.mu.
func (s *Store) appendOutboxLocked(msgs []domain.OutboxMessage) {
	for _, msg := range msgs {
		if _, exists := s.outboxIdx[msg.ID]; exists {
			continue
		}
		record := &outboxRecord{msg: msg}
		s.outbox = append(s.outbox, record)
		s.outboxIdx[msg.ID] = record
	}
}
