package core

// journal is an undo log over the auction aggregate. Every mutation records the
// closure that restores the previous value; reverting to a revision replays
// those closures newest first.
type journal struct {
	undo []func()
}

func (j *journal) revision() int {
	return len(j.undo)
}

func (j *journal) record(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *journal) revertTo(revision int) {
	for i := len(j.undo) - 1; i >= revision; i-- {
		j.undo[i]()
	}
	j.undo = j.undo[:revision]
}

func (j *journal) reset() {
	j.undo = nil
}
