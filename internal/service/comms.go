package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

// MessageIntent labels why a message was sent.
type MessageIntent string

const (
	IntentInform   MessageIntent = "inform"
	IntentRequest  MessageIntent = "request"
	IntentPropose  MessageIntent = "propose"
	IntentAgree    MessageIntent = "agree"
	IntentDisagree MessageIntent = "disagree"
	IntentQuestion MessageIntent = "question"
	IntentAnswer   MessageIntent = "answer"
	IntentCommit   MessageIntent = "commit"
)

// CommitmentStatus tracks a promise through its lifecycle.
type CommitmentStatus string

const (
	CommitmentOpen   CommitmentStatus = "open"
	CommitmentDone   CommitmentStatus = "done"
	CommitmentMissed CommitmentStatus = "missed"
)

// Message is one utterance in a thread, mirrored onto the event timeline.
type Message struct {
	MessageID string            `json:"message_id"`
	ThreadID  string            `json:"thread_id"`
	Intent    MessageIntent     `json:"intent"`
	Text      string            `json:"text"`
	Data      map[string]any    `json:"data,omitempty"`
	Sender    domain.Provenance `json:"sender"`
	CreatedAt time.Time         `json:"created_at"`
}

// Question awaits an answer; AnswerID stays empty until one arrives.
type Question struct {
	QuestionID string    `json:"question_id"`
	ThreadID   string    `json:"thread_id"`
	AskerID    string    `json:"asker_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	AnswerID   string    `json:"answer_id,omitempty"`
}

// Answer resolves a question.
type Answer struct {
	AnswerID   string    `json:"answer_id"`
	QuestionID string    `json:"question_id"`
	AgentID    string    `json:"agent_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Commitment is a tracked promise by one agent to another.
type Commitment struct {
	CommitmentID string           `json:"commitment_id"`
	ThreadID     string           `json:"thread_id"`
	OwnerID      string           `json:"owner_id"`
	Beneficiary  string           `json:"beneficiary,omitempty"`
	Description  string           `json:"description"`
	Due          time.Time        `json:"due,omitempty"`
	Status       CommitmentStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	ResolvedAt   time.Time        `json:"resolved_at,omitempty"`
}

type thread struct {
	threadID string
	topic    string
	messages []Message
}

// CommsService layers structured conversation (threads, questions,
// commitments) over the event timeline. Every message also lands on the
// blackboard as a message event, so replay preserves the conversational
// record even though thread indexes are in-memory.
type CommsService struct {
	bb     *store.Blackboard
	clock  domain.Clock
	logger *zap.Logger

	mu          sync.RWMutex
	threads     map[string]*thread
	questions   map[string]*Question
	answers     map[string]*Answer
	commitments map[string]*Commitment
}

func NewCommsService(bb *store.Blackboard, clock domain.Clock, logger *zap.Logger) *CommsService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommsService{
		bb:          bb,
		clock:       clock,
		logger:      logger,
		threads:     make(map[string]*thread),
		questions:   make(map[string]*Question),
		answers:     make(map[string]*Answer),
		commitments: make(map[string]*Commitment),
	}
}

// NewThread opens a conversation thread and returns its id.
func (s *CommsService) NewThread(topic string) string {
	id := domain.NewID("thr")
	s.mu.Lock()
	s.threads[id] = &thread{threadID: id, topic: topic}
	s.mu.Unlock()
	return id
}

// PostMessage appends a message to a thread and mirrors it to the timeline.
func (s *CommsService) PostMessage(ctx context.Context, threadID string, sender domain.Provenance, intent MessageIntent, text string, data map[string]any) (Message, error) {
	s.mu.Lock()
	th, ok := s.threads[threadID]
	s.mu.Unlock()
	if !ok {
		return Message{}, fmt.Errorf("thread %s: %w", threadID, store.ErrNotFound)
	}

	msg := Message{
		MessageID: domain.NewID("msg"),
		ThreadID:  threadID,
		Intent:    intent,
		Text:      text,
		Data:      data,
		Sender:    sender,
		CreatedAt: s.clock.Now().UTC(),
	}
	_, err := s.bb.AppendEvent(ctx, domain.EventMessage, sender,
		fmt.Sprintf("%s: %s", intent, text),
		map[string]any{"thread_id": threadID, "message_id": msg.MessageID, "intent": string(intent)},
		"",
	)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	th.messages = append(th.messages, msg)
	s.mu.Unlock()
	return msg, nil
}

// ThreadMessages returns a copy of the thread's message history in order.
func (s *CommsService) ThreadMessages(threadID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, store.ErrNotFound)
	}
	out := make([]Message, len(th.messages))
	copy(out, th.messages)
	return out, nil
}

// Ask posts a question message and registers it as awaiting an answer.
func (s *CommsService) Ask(ctx context.Context, threadID string, asker domain.Provenance, text string) (Question, error) {
	q := Question{
		QuestionID: domain.NewID("qst"),
		ThreadID:   threadID,
		AskerID:    asker.AgentID,
		Text:       text,
		CreatedAt:  s.clock.Now().UTC(),
	}
	_, err := s.PostMessage(ctx, threadID, asker, IntentQuestion, text,
		map[string]any{"question_id": q.QuestionID})
	if err != nil {
		return Question{}, err
	}
	s.mu.Lock()
	s.questions[q.QuestionID] = &q
	s.mu.Unlock()
	return q, nil
}

// Answer resolves a known question. Answering an unknown question is an
// error; answering an already-answered one replaces the link.
func (s *CommsService) Answer(ctx context.Context, questionID string, responder domain.Provenance, text string, confidence float64) (Answer, error) {
	s.mu.Lock()
	q, ok := s.questions[questionID]
	s.mu.Unlock()
	if !ok {
		return Answer{}, fmt.Errorf("question %s: %w", questionID, store.ErrNotFound)
	}

	ans := Answer{
		AnswerID:   domain.NewID("ans"),
		QuestionID: questionID,
		AgentID:    responder.AgentID,
		Text:       text,
		Confidence: domain.Clamp01(confidence),
		CreatedAt:  s.clock.Now().UTC(),
	}
	_, err := s.PostMessage(ctx, q.ThreadID, responder, IntentAnswer, text,
		map[string]any{"question_id": questionID, "answer_id": ans.AnswerID})
	if err != nil {
		return Answer{}, err
	}

	s.mu.Lock()
	s.answers[ans.AnswerID] = &ans
	q.AnswerID = ans.AnswerID
	s.mu.Unlock()
	return ans, nil
}

// OpenQuestions lists unanswered questions, oldest first. An empty threadID
// matches all threads.
func (s *CommsService) OpenQuestions(threadID string) []Question {
	s.mu.RLock()
	var out []Question
	for _, q := range s.questions {
		if q.AnswerID != "" {
			continue
		}
		if threadID != "" && q.ThreadID != threadID {
			continue
		}
		out = append(out, *q)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Commit records a promise and posts a commit message to the thread.
func (s *CommsService) Commit(ctx context.Context, threadID string, owner domain.Provenance, beneficiary, description string, due time.Time) (Commitment, error) {
	c := Commitment{
		CommitmentID: domain.NewID("cmt"),
		ThreadID:     threadID,
		OwnerID:      owner.AgentID,
		Beneficiary:  beneficiary,
		Description:  description,
		Due:          due,
		Status:       CommitmentOpen,
		CreatedAt:    s.clock.Now().UTC(),
	}
	_, err := s.PostMessage(ctx, threadID, owner, IntentCommit, description,
		map[string]any{"commitment_id": c.CommitmentID, "beneficiary": beneficiary})
	if err != nil {
		return Commitment{}, err
	}
	s.mu.Lock()
	s.commitments[c.CommitmentID] = &c
	s.mu.Unlock()
	return c, nil
}

// ResolveCommitment marks a commitment done or missed and mirrors the
// transition onto the timeline.
func (s *CommsService) ResolveCommitment(ctx context.Context, commitmentID string, actor domain.Provenance, status CommitmentStatus) (Commitment, error) {
	if status != CommitmentDone && status != CommitmentMissed {
		return Commitment{}, fmt.Errorf("invalid terminal status %q", status)
	}
	s.mu.Lock()
	c, ok := s.commitments[commitmentID]
	if ok {
		c.Status = status
		c.ResolvedAt = s.clock.Now().UTC()
	}
	s.mu.Unlock()
	if !ok {
		return Commitment{}, fmt.Errorf("commitment %s: %w", commitmentID, store.ErrNotFound)
	}

	_, err := s.bb.AppendEvent(ctx, domain.EventNote, actor,
		fmt.Sprintf("commitment_%s: %s", status, c.Description),
		map[string]any{"commitment_id": commitmentID, "status": string(status)},
		"",
	)
	if err != nil {
		return Commitment{}, err
	}
	return *c, nil
}

// OpenCommitments lists open commitments, due-soonest first; zero due dates
// sort last. An empty ownerID matches all owners.
func (s *CommsService) OpenCommitments(ownerID string) []Commitment {
	s.mu.RLock()
	var out []Commitment
	for _, c := range s.commitments {
		if c.Status != CommitmentOpen {
			continue
		}
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		out = append(out, *c)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Due, out[j].Due
		if di.IsZero() != dj.IsZero() {
			return !di.IsZero()
		}
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FindPreviousAnswers searches answered questions whose text contains the
// query, newest answer first. Meant to spare agents from re-asking.
func (s *CommsService) FindPreviousAnswers(query string, limit int) []Answer {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}
	s.mu.RLock()
	var out []Answer
	for _, q := range s.questions {
		if q.AnswerID == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(q.Text), needle) {
			continue
		}
		if a, ok := s.answers[q.AnswerID]; ok {
			out = append(out, *a)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
