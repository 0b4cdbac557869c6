// Package orchestrator drives one player's view of a game room. It never decides
// game outcomes itself: every transition is derived from the authoritative room
// state returned by the game service.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/service"
)

type State string

const (
	StateIdle         State = "idle"
	StateAwaitingTurn State = "awaiting_turn"
	StateSelecting    State = "my_turn_selecting"
	StateAnswering    State = "my_turn_answering"
	StateFinished     State = "finished"
)

// ErrWrongState rejects a command the current state does not allow.
var ErrWrongState = fmt.Errorf("%w: action not allowed in the current game state", service.ErrConflict)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("orchestrator closed")

const (
	// timeoutSubmitBudget bounds the synthesized timeout submission.
	timeoutSubmitBudget = 10 * time.Second
	// retryDelay spaces out timeout submissions that failed to reach storage.
	retryDelay = time.Second
)

// Gameplay is the subset of the game service the orchestrator needs.
type Gameplay interface {
	State(ctx context.Context, session *domain.Session, roomID string) (*domain.RoomState, error)
	SelectQuestion(ctx context.Context, session *domain.Session, roomID, questionID string) (*domain.BoardCell, error)
	SubmitAnswer(ctx context.Context, session *domain.Session, roomID, questionID string, answer domain.Answer) (*domain.AnswerResult, error)
	AnswerTimeout() time.Duration
}

// Snapshot is what the orchestrator reports to its connection after every change.
type Snapshot struct {
	State      State             `json:"state"`
	Room       *domain.RoomState `json:"room,omitempty"`
	QuestionID string            `json:"question_id,omitempty"`
	Deadline   *time.Time        `json:"deadline,omitempty"`
}

// Orchestrator is owned by one websocket connection. All transitions are
// serialised by mu, including the answer timer.
type Orchestrator struct {
	mu       sync.Mutex
	game     Gameplay
	session  *domain.Session
	roomID   string
	onChange func(Snapshot)
	now      func() time.Time

	state    State
	room     *domain.RoomState
	question string
	deadline time.Time
	timer    *time.Timer
	retry    bool
	closed   bool
}

// New returns an orchestrator in the idle state. onChange, if set, is called
// outside the lock after every transition and must not block.
func New(game Gameplay, session *domain.Session, roomID string, onChange func(Snapshot)) *Orchestrator {
	if game == nil {
		panic("Gameplay cannot be nil for Orchestrator")
	}
	return &Orchestrator{
		game:     game,
		session:  session,
		roomID:   roomID,
		onChange: onChange,
		now:      time.Now,
		state:    StateIdle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Sync re-fetches the room and reconciles against it. Broadcast events and row
// changes only ever lead here.
func (o *Orchestrator) Sync(ctx context.Context) error {
	o.mu.Lock()
	snap, err := o.syncLocked(ctx)
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.notify(snap)
	return nil
}

// Reconcile applies an authoritative room state and returns the derived state.
func (o *Orchestrator) Reconcile(rs *domain.RoomState) State {
	o.mu.Lock()
	if o.closed {
		st := o.state
		o.mu.Unlock()
		return st
	}
	o.reconcileLocked(rs)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
	return snap.State
}

// Select claims questionID for the caller's turn.
func (o *Orchestrator) Select(ctx context.Context, questionID string) error {
	o.mu.Lock()
	if err := o.allowLocked(StateSelecting); err != nil {
		o.mu.Unlock()
		return err
	}
	if _, err := o.game.SelectQuestion(ctx, o.session, o.roomID, questionID); err != nil {
		o.mu.Unlock()
		return err
	}
	snap, err := o.syncLocked(ctx)
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.notify(snap)
	return nil
}

// Submit answers the question in progress.
func (o *Orchestrator) Submit(ctx context.Context, answer domain.Answer) (*domain.AnswerResult, error) {
	o.mu.Lock()
	if err := o.allowLocked(StateAnswering); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	res, err := o.game.SubmitAnswer(ctx, o.session, o.roomID, o.question, answer)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.stopTimerLocked()
	snap, err := o.syncLocked(ctx)
	o.mu.Unlock()
	if err != nil {
		return res, err
	}
	o.notify(snap)
	return res, nil
}

// Close stops the answer timer. Later commands fail with ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopTimerLocked()
	o.closed = true
}

func (o *Orchestrator) allowLocked(want State) error {
	if o.closed {
		return ErrClosed
	}
	if o.state != want {
		return fmt.Errorf("%w: %s", ErrWrongState, o.state)
	}
	return nil
}

func (o *Orchestrator) syncLocked(ctx context.Context) (Snapshot, error) {
	if o.closed {
		return Snapshot{}, ErrClosed
	}
	rs, err := o.game.State(ctx, o.session, o.roomID)
	if err != nil {
		return Snapshot{}, err
	}
	o.reconcileLocked(rs)
	return o.snapshotLocked(), nil
}

func (o *Orchestrator) reconcileLocked(rs *domain.RoomState) {
	o.room = rs
	prev, prevQuestion := o.state, o.question
	o.state, o.question = derive(rs, o.session.UserID)

	if o.state != StateAnswering {
		o.stopTimerLocked()
		o.deadline = time.Time{}
		o.retry = false
	} else if prev != StateAnswering || prevQuestion != o.question || o.timer == nil {
		o.armTimerLocked(rs)
	}

	if prev != o.state {
		logrus.WithFields(logrus.Fields{
			"room_id": o.roomID,
			"user_id": o.session.UserID,
			"from":    prev,
			"to":      o.state,
		}).Debug("Orchestrator: state changed")
	}
}

// derive maps authoritative rows to a player state.
func derive(rs *domain.RoomState, userID string) (State, string) {
	switch rs.Room.Status {
	case domain.RoomFinished:
		return StateFinished, ""
	case domain.RoomWaiting:
		return StateIdle, ""
	}
	if !rs.Room.IsTurnOf(userID) {
		return StateAwaitingTurn, ""
	}
	if q, ok := rs.InProgress(); ok && q.SelectedBy == userID {
		return StateAnswering, q.QuestionID
	}
	return StateSelecting, ""
}

// armTimerLocked counts down from the ledger's selected_at, so a reconnecting
// client gets the remaining time rather than a fresh countdown.
func (o *Orchestrator) armTimerLocked(rs *domain.RoomState) {
	o.stopTimerLocked()
	selectedAt := o.now()
	for _, q := range rs.Questions {
		if q.QuestionID == o.question {
			selectedAt = q.SelectedAt
			break
		}
	}
	o.deadline = selectedAt.Add(o.game.AnswerTimeout())
	wait := o.deadline.Sub(o.now())
	if wait < 0 {
		wait = 0
	}
	if o.retry && wait < retryDelay {
		wait = retryDelay
	}
	questionID := o.question
	o.timer = time.AfterFunc(wait, func() { o.expire(questionID) })
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// expire submits a timeout for questionID if it is still the caller's open question.
func (o *Orchestrator) expire(questionID string) {
	log := logrus.WithFields(logrus.Fields{
		"room_id":     o.roomID,
		"user_id":     o.session.UserID,
		"question_id": questionID,
	})
	ctx, cancel := context.WithTimeout(context.Background(), timeoutSubmitBudget)
	defer cancel()

	o.mu.Lock()
	if o.closed || o.state != StateAnswering || o.question != questionID {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	_, err := o.game.SubmitAnswer(ctx, o.session, o.roomID, questionID, domain.Answer{Kind: domain.AnswerTimeout})
	o.retry = err != nil && !errors.Is(err, service.ErrConflict)
	if o.retry {
		log.WithError(err).Warn("Orchestrator: timeout submission failed")
	}
	snap, err := o.syncLocked(ctx)
	o.mu.Unlock()
	if err != nil {
		log.WithError(err).Warn("Orchestrator: resync after timeout failed")
		return
	}
	log.Info("Orchestrator: answer timed out")
	o.notify(snap)
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{State: o.state, Room: o.room, QuestionID: o.question}
	if !o.deadline.IsZero() {
		d := o.deadline
		snap.Deadline = &d
	}
	return snap
}

func (o *Orchestrator) notify(snap Snapshot) {
	if o.onChange != nil {
		o.onChange(snap)
	}
}
