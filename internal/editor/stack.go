package editor

import "render-studio/internal/canvas"

// Stack is the linear, single-branch undo history for the drawing layer.
// Append-only during drawing, truncated from the tail on undo. There is no
// redo for strokes.
type Stack struct {
	snaps []*canvas.Snapshot
}

func (s *Stack) Push(snap *canvas.Snapshot) {
	if snap == nil {
		return
	}
	s.snaps = append(s.snaps, snap)
}

// Undo drops the most recent snapshot and returns the new top (nil when the
// stack became empty). The second return is false when the stack was already
// empty, in which case nothing changed.
func (s *Stack) Undo() (*canvas.Snapshot, bool) {
	if len(s.snaps) == 0 {
		return nil, false
	}
	s.snaps = s.snaps[:len(s.snaps)-1]
	return s.Top(), true
}

func (s *Stack) Top() *canvas.Snapshot {
	if len(s.snaps) == 0 {
		return nil
	}
	return s.snaps[len(s.snaps)-1]
}

func (s *Stack) Len() int {
	return len(s.snaps)
}

func (s *Stack) Clear() {
	s.snaps = nil
}
