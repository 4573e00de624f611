// Package expiry tracks box type recency and sweeps expired box types.
package expiry

import (
	"container/list"
	"time"

	"github.com/wolfeidau/boxstock"
)

// Record is the expiration entry for a single box type.
type Record struct {
	Key       boxstock.Key
	TouchedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record expired before now.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// Queue orders box types from least to most recently touched.
//
// Records are addressed by key, not by reference into the inventory index,
// and at most one record exists per key. Queue is not safe for concurrent
// use; the owner serialises access together with its index.
type Queue struct {
	order *list.List // of *Record, front = least recently touched
	byKey map[boxstock.Key]*list.Element
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		order: list.New(),
		byKey: make(map[boxstock.Key]*list.Element),
	}
}

// AddLast appends rec at the end of the queue. It returns false without
// modifying the queue if a record for rec.Key is already present.
func (q *Queue) AddLast(rec Record) bool {
	if _, ok := q.byKey[rec.Key]; ok {
		return false
	}
	r := rec
	q.byKey[rec.Key] = q.order.PushBack(&r)
	return true
}

// RemoveFirst removes and returns the front record.
func (q *Queue) RemoveFirst() (Record, bool) {
	front := q.order.Front()
	if front == nil {
		return Record{}, false
	}
	rec := q.order.Remove(front).(*Record)
	delete(q.byKey, rec.Key)
	return *rec, true
}

// Front returns the least recently touched record without removing it.
func (q *Queue) Front() (Record, bool) {
	front := q.order.Front()
	if front == nil {
		return Record{}, false
	}
	return *front.Value.(*Record), true
}

// MoveToEnd re-arms the record for key and moves it to the end of the queue.
// It returns false if no record exists for key.
func (q *Queue) MoveToEnd(key boxstock.Key, touchedAt, expiresAt time.Time) bool {
	elem, ok := q.byKey[key]
	if !ok {
		return false
	}
	rec := elem.Value.(*Record)
	rec.TouchedAt = touchedAt
	rec.ExpiresAt = expiresAt
	q.order.MoveToBack(elem)
	return true
}

// Remove deletes the record for key and reports whether it was present.
func (q *Queue) Remove(key boxstock.Key) bool {
	elem, ok := q.byKey[key]
	if !ok {
		return false
	}
	q.order.Remove(elem)
	delete(q.byKey, key)
	return true
}

// Get returns the record for key.
func (q *Queue) Get(key boxstock.Key) (Record, bool) {
	elem, ok := q.byKey[key]
	if !ok {
		return Record{}, false
	}
	return *elem.Value.(*Record), true
}

// Contains reports whether key has a record.
func (q *Queue) Contains(key boxstock.Key) bool {
	_, ok := q.byKey[key]
	return ok
}

// Each calls fn for each record from front to back until fn returns false.
// fn must not modify the queue.
func (q *Queue) Each(fn func(Record) bool) {
	for e := q.order.Front(); e != nil; e = e.Next() {
		if !fn(*e.Value.(*Record)) {
			return
		}
	}
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	return q.order.Len()
}

// Keys returns the queued keys from front to back.
func (q *Queue) Keys() []boxstock.Key {
	keys := make([]boxstock.Key, 0, q.order.Len())
	q.Each(func(r Record) bool {
		keys = append(keys, r.Key)
		return true
	})
	return keys
}
