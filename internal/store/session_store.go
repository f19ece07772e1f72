package store

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdulhaseeb2115/quizzio/internal/apperr"
)

const shardCount = 32

var errSessionNotFound = apperr.NotFound("session expired or not found")

type entry struct {
	index        VectorIndex
	lastActivity time.Time
	quiz         QuizState
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// SessionStore owns every live session. Each id hashes to one shard, so
// operations on different sessions rarely contend and never wait on a
// provider call: no method does I/O while holding a lock.
type SessionStore struct {
	shards [shardCount]*shard
	now    func() time.Time
	newID  func() string
}

type Option func(*SessionStore)

func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		s.now = now
	}
}

// WithIDGenerator replaces the UUIDv4 generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *SessionStore) {
		s.newID = gen
	}
}

func NewSessionStore(opts ...Option) *SessionStore {
	s := &SessionStore{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// Create registers idx under a fresh session id.
func (s *SessionStore) Create(idx VectorIndex) (string, error) {
	if idx == nil {
		return "", fmt.Errorf("create session: nil index")
	}
	for attempt := 0; attempt < 3; attempt++ {
		id := s.newID()
		sh := s.shardFor(id)
		sh.mu.Lock()
		if _, taken := sh.sessions[id]; !taken {
			sh.sessions[id] = &entry{index: idx, lastActivity: s.now()}
			sh.mu.Unlock()
			return id, nil
		}
		sh.mu.Unlock()
	}
	return "", fmt.Errorf("create session: could not allocate a unique id")
}

// update runs fn on the entry for id under the shard write lock and stamps
// its activity.
func (s *SessionStore) update(id string, fn func(e *entry) error) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.sessions[id]
	if !ok {
		return errSessionNotFound
	}
	e.lastActivity = s.now()
	if fn == nil {
		return nil
	}
	return fn(e)
}

func (s *SessionStore) Touch(id string) error {
	return s.update(id, nil)
}

// Get returns a copy of the session and stamps its activity.
func (s *SessionStore) Get(id string) (Session, error) {
	var out Session
	err := s.update(id, func(e *entry) error {
		out = Session{
			ID:           id,
			Index:        e.index,
			LastActivity: e.lastActivity,
			Quiz:         QuizState{Mode: e.quiz.Mode, Data: e.quiz.Data.Clone()},
		}
		return nil
	})
	return out, err
}

func (s *SessionStore) SetQuizMode(id string, mode QuizMode) error {
	return s.update(id, func(e *entry) error {
		e.quiz.Mode = mode
		return nil
	})
}

// QuizState returns the session's quiz sub-state. A session that never had a
// mode set reports QuizModeUnset and no data.
func (s *SessionStore) QuizState(id string) (QuizState, error) {
	var out QuizState
	err := s.update(id, func(e *entry) error {
		out = QuizState{Mode: e.quiz.Mode, Data: e.quiz.Data.Clone()}
		return nil
	})
	return out, err
}

// SetQuizData stores data unless the session already holds quiz data, in
// which case the stored data wins. The returned copy is what the session
// holds afterwards.
func (s *SessionStore) SetQuizData(id string, data *QuizData) (*QuizData, error) {
	if data == nil {
		return nil, fmt.Errorf("set quiz data: nil data")
	}
	var out *QuizData
	err := s.update(id, func(e *entry) error {
		if e.quiz.Data == nil {
			e.quiz.Data = data.Clone()
		}
		out = e.quiz.Data.Clone()
		return nil
	})
	return out, err
}

// RecordSubmission replaces the answers and score of the stored quiz.
func (s *SessionStore) RecordSubmission(id string, answers map[int]int, score int) error {
	return s.update(id, func(e *entry) error {
		if e.quiz.Data == nil {
			return apperr.Validation("Quiz data not found for this session")
		}
		copied := make(map[int]int, len(answers))
		for k, v := range answers {
			copied[k] = v
		}
		e.quiz.Data.UserAnswers = copied
		e.quiz.Data.Score = &score
		return nil
	})
}

// Delete removes the session and releases its index. Deleting an absent id
// is a no-op.
func (s *SessionStore) Delete(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.sessions[id]
	delete(sh.sessions, id)
	sh.mu.Unlock()
	if ok {
		release(e)
	}
}

// ListExpired returns the ids whose last activity is more than ttl before now.
func (s *SessionStore) ListExpired(now time.Time, ttl time.Duration) []string {
	var ids []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, e := range sh.sessions {
			if now.Sub(e.lastActivity) > ttl {
				ids = append(ids, id)
			}
		}
		sh.mu.RUnlock()
	}
	return ids
}

// DeleteIfIdle deletes id only if it is still idle for more than ttl at now.
// A session touched after the caller listed it survives.
func (s *SessionStore) DeleteIfIdle(id string, now time.Time, ttl time.Duration) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.sessions[id]
	if !ok || now.Sub(e.lastActivity) <= ttl {
		sh.mu.Unlock()
		return false
	}
	delete(sh.sessions, id)
	sh.mu.Unlock()
	release(e)
	return true
}

func (s *SessionStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot lists every session without stamping activity, ordered by id.
func (s *SessionStore) Snapshot() []SessionInfo {
	var out []SessionInfo
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, e := range sh.sessions {
			out = append(out, SessionInfo{ID: id, LastActivity: e.lastActivity, Index: e.index})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func release(e *entry) {
	e.index.Release()
	e.quiz = QuizState{}
}
