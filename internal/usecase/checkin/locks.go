package checkin

import "sync"

// Locks сериализует чтение-изменение-запись записи одного подписчика:
// цикл напоминаний и интерактивные команды берут один и тот же мьютекс.
// Операции над разными подписчиками не координируются.
type Locks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

// NewLocks создаёт реестр мьютексов.
func NewLocks() *Locks {
	return &Locks{m: make(map[int64]*sync.Mutex)}
}

// Of возвращает мьютекс подписчика, создавая его при первом обращении.
func (l *Locks) Of(tgUserID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.m[tgUserID]
	if !ok {
		m = &sync.Mutex{}
		l.m[tgUserID] = m
	}
	return m
}

// Forget убирает мьютекс удалённого подписчика.
func (l *Locks) Forget(tgUserID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, tgUserID)
}
