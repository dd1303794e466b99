// Package couplingqueue implements C11: a TTL-bounded, capped,
// priority-ordered buffer of requests for human attention (spec §4.11).
// It is an in-process single-owner cache (spec §9) whose persisted view
// lives in domain.State.Coupling.Queue; callers are responsible for
// wrapping mutating calls in a statestore.Update/AppendAtomic so every
// queue change lands in state/current.json alongside the triggering
// event. Unlike the rest of State, the queue is deliberately excluded
// from INV-002's projection check (internal/invariant's checkProjection):
// it is mutated in place under the store's lock, not reconstructed by
// replaying the log.
package couplingqueue

import (
	"fmt"
	"strings"
	"time"

	"entity/internal/domain"
)

// Config is the tunable set named in spec §4.11.
type Config struct {
	MaxPending     int
	DedupeWindow   time.Duration
	Cooldown       time.Duration
	HistorySize    int
	TTLUrgent      time.Duration
	TTLNormal      time.Duration
	TTLLow         time.Duration
}

// DefaultConfig matches spec §4.11's literal defaults.
func DefaultConfig() Config {
	return Config{
		MaxPending:   5,
		DedupeWindow: 30 * time.Minute,
		Cooldown:     5 * time.Minute,
		HistorySize:  20,
		TTLUrgent:    time.Hour,
		TTLNormal:    4 * time.Hour,
		TTLLow:       24 * time.Hour,
	}
}

func (c Config) ttlFor(p domain.Priority) time.Duration {
	switch p {
	case domain.RequestUrgent:
		return c.TTLUrgent
	case domain.RequestNormal:
		return c.TTLNormal
	default:
		return c.TTLLow
	}
}

var rank = map[domain.Priority]int{
	domain.RequestUrgent: 2,
	domain.RequestNormal: 1,
	domain.RequestLow:    0,
}

func normalize(reason string) string {
	return strings.ToLower(strings.TrimSpace(reason))
}

// EnqueueResult reports what Enqueue did, for callers that need to log
// or respond differently for a fresh insert vs. a dedupe refresh.
type EnqueueResult string

const (
	ResultCreated EnqueueResult = "created"
	ResultUpdated EnqueueResult = "updated"
	ResultRejected EnqueueResult = "rejected"
)

// Enqueue applies spec §4.11's enqueue algorithm to q in place and
// returns the outcome plus a human-readable reason when rejected.
func Enqueue(q *domain.QueueState, cfg Config, req domain.CouplingRequest, now time.Time) (EnqueueResult, string) {
	if !q.CooldownUntil.IsZero() && now.Before(q.CooldownUntil) && req.Priority != domain.RequestUrgent {
		return ResultRejected, "cooldown active"
	}

	normReason := normalize(req.Reason)
	for i := range q.Pending {
		p := &q.Pending[i]
		if p.Status == domain.RequestPending && p.Priority == req.Priority && normalize(p.Reason) == normReason {
			if now.Sub(p.RequestedAt) <= cfg.DedupeWindow {
				p.RequestedAt = now
				p.ExpiresAt = now.Add(cfg.ttlFor(p.Priority))
				p.Context = req.Context
				return ResultUpdated, "refreshed existing pending request"
			}
		}
	}

	if len(q.Pending) >= cfg.MaxPending {
		evictIdx := -1
		for i, p := range q.Pending {
			if rank[p.Priority] < rank[req.Priority] {
				if evictIdx == -1 || q.Pending[i].RequestedAt.Before(q.Pending[evictIdx].RequestedAt) {
					evictIdx = i
				}
			}
		}
		if evictIdx == -1 {
			return ResultRejected, "queue full"
		}
		evicted := q.Pending[evictIdx]
		evicted.Status = domain.RequestCanceled
		evicted.CompletedAt = now
		evicted.Note = fmt.Sprintf("Replaced by %s", req.ID.String())
		q.Pending = append(q.Pending[:evictIdx], q.Pending[evictIdx+1:]...)
		pushHistory(q, cfg, evicted)
	}

	req.RequestedAt = now
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = now.Add(cfg.ttlFor(req.Priority))
	}
	req.Status = domain.RequestPending
	q.Pending = append(q.Pending, req)
	q.Counters.TotalEnqueued++
	return ResultCreated, ""
}

// Expire moves every pending request past ExpiresAt into history with
// Status = expired (spec §4.11).
func Expire(q *domain.QueueState, cfg Config, now time.Time) int {
	kept := q.Pending[:0:0]
	count := 0
	for _, p := range q.Pending {
		if p.Status == domain.RequestPending && now.After(p.ExpiresAt) {
			p.Status = domain.RequestExpired
			p.CompletedAt = now
			pushHistory(q, cfg, p)
			q.Counters.TotalExpired++
			count++
			continue
		}
		kept = append(kept, p)
	}
	q.Pending = kept
	return count
}

// Grant transitions a pending request to granted, starting the cooldown
// window and updating the average-time-to-grant counter (spec §4.11). A
// request already past its TTL is expired instead and an error reason is
// returned.
func Grant(q *domain.QueueState, cfg Config, id domain.ID, now time.Time) (domain.CouplingRequest, error) {
	for i := range q.Pending {
		p := &q.Pending[i]
		if p.ID != id {
			continue
		}
		if now.After(p.ExpiresAt) {
			expired := *p
			expired.Status = domain.RequestExpired
			expired.CompletedAt = now
			q.Pending = append(q.Pending[:i], q.Pending[i+1:]...)
			pushHistory(q, cfg, expired)
			q.Counters.TotalExpired++
			return domain.CouplingRequest{}, fmt.Errorf("request %s expired", id)
		}
		p.Status = domain.RequestGranted
		p.GrantedAt = now
		q.CooldownUntil = now.Add(cfg.Cooldown)
		q.Counters.TotalGranted++
		q.Counters.AvgTimeToGrantMs = runningAverage(q.Counters.AvgTimeToGrantMs, q.Counters.TotalGranted, float64(now.Sub(p.RequestedAt).Milliseconds()))
		return *p, nil
	}
	return domain.CouplingRequest{}, fmt.Errorf("request %s not pending", id)
}

// Complete moves a granted request to history, recording outcome/note
// and the average-time-to-complete counter (spec §4.11).
func Complete(q *domain.QueueState, cfg Config, id domain.ID, outcome, note string, now time.Time) (domain.CouplingRequest, error) {
	for i := range q.Pending {
		p := q.Pending[i]
		if p.ID != id {
			continue
		}
		if p.Status != domain.RequestGranted {
			return domain.CouplingRequest{}, fmt.Errorf("request %s is not granted", id)
		}
		p.Status = domain.RequestCompleted
		p.CompletedAt = now
		p.Outcome = outcome
		p.Note = note
		q.Pending = append(q.Pending[:i], q.Pending[i+1:]...)
		pushHistory(q, cfg, p)
		q.Counters.AvgTimeToCompleteMs = runningAverage(q.Counters.AvgTimeToCompleteMs, len(q.History), float64(now.Sub(p.GrantedAt).Milliseconds()))
		return p, nil
	}
	return domain.CouplingRequest{}, fmt.Errorf("request %s not found among granted", id)
}

// Cancel removes a pending request (only) into history (spec §4.11).
func Cancel(q *domain.QueueState, cfg Config, id domain.ID, reason string, now time.Time) (domain.CouplingRequest, error) {
	for i := range q.Pending {
		p := q.Pending[i]
		if p.ID != id {
			continue
		}
		if p.Status != domain.RequestPending {
			return domain.CouplingRequest{}, fmt.Errorf("request %s is not pending", id)
		}
		p.Status = domain.RequestCanceled
		p.CompletedAt = now
		p.Note = reason
		q.Pending = append(q.Pending[:i], q.Pending[i+1:]...)
		pushHistory(q, cfg, p)
		q.Counters.TotalCanceled++
		return p, nil
	}
	return domain.CouplingRequest{}, fmt.Errorf("request %s not pending", id)
}

func pushHistory(q *domain.QueueState, cfg Config, req domain.CouplingRequest) {
	q.History = append(q.History, req)
	if over := len(q.History) - cfg.HistorySize; over > 0 {
		q.History = q.History[over:]
	}
}

func runningAverage(prevAvg float64, n int, sample float64) float64 {
	if n <= 1 {
		return sample
	}
	return prevAvg + (sample-prevAvg)/float64(n)
}
