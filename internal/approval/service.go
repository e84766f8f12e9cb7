package approval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultTTL = 15 * time.Minute

var (
	// ErrNotFound is returned for an unknown request id.
	ErrNotFound = errors.New("approval request not found")
	// ErrNotPending is returned when deciding a request that is already decided.
	ErrNotPending = errors.New("approval request is not pending")
)

// Service implements the approval request lifecycle on top of a Store.
type Service struct {
	store      *Store
	defaultTTL time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

// NewService creates a service over store. ttl <= 0 selects 15 minutes.
func NewService(store *Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{store: store, defaultTTL: ttl, now: time.Now}
}

// Store returns the backing store.
func (s *Service) Store() *Store {
	return s.store
}

// Create inserts a pending request.
func (s *Service) Create(input CreateInput) (Request, error) {
	action := strings.TrimSpace(input.Action)
	if action == "" {
		return Request{}, fmt.Errorf("action is required")
	}
	now := s.now().UTC()
	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var req Request
	err := s.store.update(func(data *fileData) (bool, error) {
		req = Request{
			ID:            strconv.FormatInt(data.NextID, 10),
			RunID:         strings.TrimSpace(input.RunID),
			Action:        action,
			Limit:         input.Limit,
			HasTimeFilter: input.HasTimeFilter,
			Reason:        strings.TrimSpace(input.Reason),
			Status:        StatusPending,
			RequestedAt:   now,
			ExpiresAt:     now.Add(ttl),
		}
		data.NextID++
		data.Requests = append(data.Requests, req)
		return true, nil
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// Get returns one request. A pending request past its TTL is reported as
// expired without being persisted; ExpirePending persists it.
func (s *Service) Get(id string) (Request, error) {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.load()
	if err != nil {
		return Request{}, err
	}
	for _, req := range data.Requests {
		if req.ID != id {
			continue
		}
		if req.Status == StatusPending && s.pastTTL(req) {
			req.Status = StatusExpired
		}
		return req, nil
	}
	return Request{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Approve marks a pending request approved.
func (s *Service) Approve(id string, decision DecisionInput) (Request, error) {
	return s.decide(id, StatusApproved, decision, "approved")
}

// Reject marks a pending request rejected.
func (s *Service) Reject(id string, decision DecisionInput) (Request, error) {
	return s.decide(id, StatusRejected, decision, "rejected")
}

// Expire closes a pending request as expired, e.g. when its waiter gave up.
func (s *Service) Expire(id, note string) (Request, error) {
	return s.decide(id, StatusExpired, DecisionInput{DecidedBy: "system", Note: note}, "expired")
}

// List returns the requests matching query, oldest first.
func (s *Service) List(query Query) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.load()
	if err != nil {
		return nil, err
	}

	idFilter := strings.TrimSpace(query.ID)
	runFilter := strings.TrimSpace(query.RunID)
	statusFilter := strings.TrimSpace(string(query.Status))
	actionFilter := strings.TrimSpace(query.Action)

	result := make([]Request, 0, len(data.Requests))
	for _, req := range data.Requests {
		if idFilter != "" && req.ID != idFilter {
			continue
		}
		if runFilter != "" && req.RunID != runFilter {
			continue
		}
		if statusFilter != "" && string(req.Status) != statusFilter {
			continue
		}
		if actionFilter != "" && req.Action != actionFilter {
			continue
		}
		result = append(result, req)
	}
	return result, nil
}

// ExpirePending persists the expiry of every pending request past its TTL.
func (s *Service) ExpirePending() ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Request
	err := s.store.update(func(data *fileData) (bool, error) {
		now := s.now().UTC()
		for i := range data.Requests {
			req := &data.Requests[i]
			if req.Status != StatusPending || !s.pastTTL(*req) {
				continue
			}
			req.Status = StatusExpired
			req.DecidedAt = now
			req.DecidedBy = "system"
			if req.DecisionNote == "" {
				req.DecisionNote = "expired by ttl"
			}
			expired = append(expired, *req)
		}
		return len(expired) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

func (s *Service) pastTTL(req Request) bool {
	return !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(s.now().UTC())
}

func (s *Service) decide(id string, status RequestStatus, decision DecisionInput, defaultNote string) (Request, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Request{}, fmt.Errorf("id is required")
	}

	decidedBy := strings.TrimSpace(decision.DecidedBy)
	if decidedBy == "" {
		decidedBy = "unknown"
	}
	note := strings.TrimSpace(decision.Note)
	if note == "" {
		note = defaultNote
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var decided Request
	err := s.store.update(func(data *fileData) (bool, error) {
		for i := range data.Requests {
			req := &data.Requests[i]
			if req.ID != id {
				continue
			}
			if req.Status != StatusPending {
				return false, fmt.Errorf("%w: %s is %s", ErrNotPending, id, req.Status)
			}
			if status != StatusExpired && s.pastTTL(*req) {
				return false, fmt.Errorf("%w: %s expired at %s", ErrNotPending, id, req.ExpiresAt.Format(time.RFC3339))
			}

			req.Status = status
			req.DecidedAt = s.now().UTC()
			req.DecidedBy = decidedBy
			req.DecisionNote = note
			decided = *req
			return true, nil
		}
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	})
	if err != nil {
		return Request{}, err
	}
	return decided, nil
}
