package shop

import (
	"bartershops/internal/core"
	apperrors "bartershops/pkg/errors"
	"fmt"
	"sync"
)

// Directory indexes shop records by id and sign location
type Directory struct {
	mu         sync.RWMutex
	byID       map[string]Record
	byLocation map[core.Location]string
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		byID:       make(map[string]Record),
		byLocation: make(map[core.Location]string),
	}
}

// Put inserts or replaces a record
func (d *Directory) Put(r Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.byID[r.id]; ok && old.location != r.location {
		delete(d.byLocation, old.location)
	}
	d.byID[r.id] = r
	d.byLocation[r.location] = r.id
}

// Get returns the record for id
func (d *Directory) Get(id string) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.byID[id]
	return r, ok
}

// GetAt returns the record whose sign is at loc
func (d *Directory) GetAt(loc core.Location) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byLocation[loc]
	if !ok {
		return Record{}, false
	}
	r, ok := d.byID[id]
	return r, ok
}

// SetMode replaces the stored record with a copy in mode m
func (d *Directory) SetMode(id string, m Mode) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("shop %s: %w", id, apperrors.ErrShopNotFound)
	}
	r = r.WithMode(m)
	d.byID[id] = r
	return r, nil
}

// Remove deletes a record. Removing an unknown id is a no-op.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.byID[id]; ok {
		delete(d.byLocation, r.location)
		delete(d.byID, id)
	}
}
