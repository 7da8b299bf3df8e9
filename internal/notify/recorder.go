package notify

import (
	"context"
	"sync"
)

// Sent is a message captured by Recorder.
type Sent struct {
	UserID    int64
	MessageID int
	Message   Message
}

// Recorder is an in-memory Notifier for tests.
type Recorder struct {
	mu      sync.Mutex
	nextID  int
	sent    []Sent
	deleted map[int64][]int
	// SendErr, when set, is returned by Send after recording nothing.
	SendErr error
}

var _ Notifier = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{deleted: make(map[int64][]int)}
}

func (r *Recorder) Send(_ context.Context, userID int64, msg Message) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.SendErr != nil {
		return 0, r.SendErr
	}

	r.nextID++
	r.sent = append(r.sent, Sent{UserID: userID, MessageID: r.nextID, Message: msg})
	return r.nextID, nil
}

func (r *Recorder) Delete(_ context.Context, userID int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted[userID] = append(r.deleted[userID], messageID)
	return nil
}

// Messages returns everything sent to userID in order.
func (r *Recorder) Messages(userID int64) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Message
	for _, s := range r.sent {
		if s.UserID == userID {
			out = append(out, s.Message)
		}
	}
	return out
}

// Last returns the most recent message sent to userID.
func (r *Recorder) Last(userID int64) (Message, bool) {
	msgs := r.Messages(userID)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// Deleted returns the message ids deleted for userID.
func (r *Recorder) Deleted(userID int64) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.deleted[userID]...)
}

// Reset forgets all captured traffic.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.deleted = make(map[int64][]int)
}
