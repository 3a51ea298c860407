// Package clock абстрагирует источник текущего времени.
package clock

import (
	"sync"
	"time"
)

// Clock источник текущего времени.
type Clock interface {
	Now() time.Time
}

// System возвращает реальное время в UTC.
type System struct{}

// Now текущее время в UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Manual часы с ручным управлением, для тестов и разовых прогонов.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual создаёт часы, остановленные на t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

// Now текущее значение часов.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set переставляет часы.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

// Advance сдвигает часы вперёд на d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
