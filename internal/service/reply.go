package service

import "github.com/raphaelgruber/budgetchat/internal/models"

// DragPhase is the state of the reply gesture.
type DragPhase int

const (
	DragIdle DragPhase = iota
	DragArmedLeft
	DragArmedRight
)

func (p DragPhase) String() string {
	switch p {
	case DragArmedLeft:
		return "armed-left"
	case DragArmedRight:
		return "armed-right"
	default:
		return "idle"
	}
}

// DefaultDragThreshold is the horizontal offset that arms a reply.
const DefaultDragThreshold = 8

// ReplyTracker turns a horizontal drag on a message into a pending reply:
//
//	Idle --drag past threshold--> ArmedLeft | ArmedRight
//	Armed --release--> Committed (pending reply set), back to Idle
//	Armed --drag back inside threshold / cancel--> Idle
//
// Only one reply can be pending; committing another replaces it.
type ReplyTracker struct {
	threshold int
	phase     DragPhase
	target    models.Message
	pending   *models.PendingReply
}

// NewReplyTracker creates a tracker. A threshold <= 0 uses DefaultDragThreshold.
func NewReplyTracker(threshold int) *ReplyTracker {
	if threshold <= 0 {
		threshold = DefaultDragThreshold
	}
	return &ReplyTracker{threshold: threshold}
}

// Threshold returns the arming offset.
func (r *ReplyTracker) Threshold() int {
	return r.threshold
}

// Drag reports the current horizontal offset of a drag on msg.
func (r *ReplyTracker) Drag(msg models.Message, offsetX int) {
	switch {
	case offsetX >= r.threshold:
		r.phase = DragArmedRight
	case offsetX <= -r.threshold:
		r.phase = DragArmedLeft
	default:
		r.phase = DragIdle
		r.target = models.Message{}
		return
	}
	r.target = msg
}

// Release ends the drag. An armed drag commits its message as the pending reply.
func (r *ReplyTracker) Release() (models.PendingReply, bool) {
	if r.phase == DragIdle {
		return models.PendingReply{}, false
	}

	p := models.NewPendingReply(r.target)
	r.pending = &p
	r.phase = DragIdle
	r.target = models.Message{}
	return p, true
}

// CancelDrag abandons the drag without committing.
func (r *ReplyTracker) CancelDrag() {
	r.phase = DragIdle
	r.target = models.Message{}
}

// Armed returns the drag phase and the id of the message being dragged.
func (r *ReplyTracker) Armed() (DragPhase, string) {
	return r.phase, r.target.ID
}

// Pending returns the committed reply, if any.
func (r *ReplyTracker) Pending() (models.PendingReply, bool) {
	if r.pending == nil {
		return models.PendingReply{}, false
	}
	return *r.pending, true
}

// Clear dismisses the pending reply.
func (r *ReplyTracker) Clear() {
	r.pending = nil
}
