// Package inmemdb keeps every table in memory. It backs the tests & the API when no database is configured.
package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/enrollment"
	"github.com/eduplatform/backend/core/review"
	"github.com/eduplatform/backend/core/user"
)

type (
	DB struct {
		user       *userTable
		course     *courseTable
		enrollment *enrollmentTable
		review     *reviewTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
		seq   sequence
	}

	courseTable struct {
		mutex sync.RWMutex
		table map[string]*course.Course
		seq   sequence
	}

	enrollmentTable struct {
		mutex sync.RWMutex
		table map[string]*enrollment.Enrollment // keyed by enrollmentKey
		seq   sequence
	}

	reviewTable struct {
		mutex sync.RWMutex
		table map[string]*review.Review // keyed by reviewKey
		seq   sequence
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User), seq: newSequence()},
		course:     &courseTable{table: make(map[string]*course.Course), seq: newSequence()},
		enrollment: &enrollmentTable{table: make(map[string]*enrollment.Enrollment), seq: newSequence()},
		review:     &reviewTable{table: make(map[string]*review.Review), seq: newSequence()},
	}
}

// Transactor runs fn right away: every repository call is already atomic.
type Transactor struct{}

var _ core.Transactor = Transactor{}

func (Transactor) InTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	return fn(nil)
}

// sequence records the insertion order of rows.
type sequence struct {
	next  int
	order map[string]int
}

func newSequence() sequence {
	return sequence{order: make(map[string]int)}
}

func (s *sequence) add(key string) {
	s.next++
	s.order[key] = s.next
}

// newestFirst orders by creation time, most recent first, then by reverse insertion order.
func (s *sequence) newestFirst(ti, tj time.Time, ki, kj string) bool {
	if ti.Equal(tj) {
		return s.order[ki] > s.order[kj]
	}
	return ti.After(tj)
}
