package cellcore

import (
	"runtime"
	"sync/atomic"
)

// Message is a value written to a cell's comm region by the hypervisor,
// polled and acted on cooperatively by the cell's own guest code (spec
// §4.6).
type Message int32

const (
	MsgNone Message = iota
	MsgShutdownRequest
)

// Reply is a value written back by the cell in response to a Message.
type Reply int32

const (
	ReplyNone Reply = iota
	ReplyShutdownOK
	ReplyShutdownDenied
)

// CommState mirrors the guest-visible cell_state field of a comm region:
// the three known values spec §3/§4.5.3 enumerate (CELL_RUNNING,
// CELL_SHUT_DOWN, CELL_FAILED). A value outside this set is what
// get_state's "otherwise return invalid" case detects.
type CommState int32

const (
	CommStateRunning CommState = iota
	CommStateShutDown
	CommStateFailed
)

// CommRegion is the single-page cooperative-shutdown channel the
// hypervisor shares with a cell (spec §3, §4.6): three fields, each with
// one regular writer -- the hypervisor writes msg_to_cell, the cell writes
// reply_from_cell and cell_state. The hypervisor also writes the other two
// in two places: ShutdownOK clears reply_from_cell before posting a
// request, and panic_halt sets cell_state to failed. Plain atomics, without
// an additional lock, give the fenced single-producer-per-field protocol the
// original implements with explicit memory barriers.
type CommRegion struct {
	msgToCell     atomic.Int32
	replyFromCell atomic.Int32
	cellState     atomic.Int32
}

// NewCommRegion returns a comm region in its initial running state.
func NewCommRegion() *CommRegion {
	c := &CommRegion{}
	c.cellState.Store(int32(CommStateRunning))
	return c
}

// PostMessage is the hypervisor-side write of msg_to_cell.
func (c *CommRegion) PostMessage(msg Message) {
	c.msgToCell.Store(int32(msg))
}

// ReadMessage is the cell-side read of msg_to_cell.
func (c *CommRegion) ReadMessage() Message {
	return Message(c.msgToCell.Load())
}

// PostReply is the cell-side write of reply_from_cell.
func (c *CommRegion) PostReply(reply Reply) {
	c.replyFromCell.Store(int32(reply))
}

// Reply is the hypervisor-side read of reply_from_cell.
func (c *CommRegion) Reply() Reply {
	return Reply(c.replyFromCell.Load())
}

// SetCellState is the cell-side write of cell_state (also used by the
// hypervisor's own panic_halt path, which force-fails a cell from outside
// the guest).
func (c *CommRegion) SetCellState(s CommState) {
	c.cellState.Store(int32(s))
}

// CellState is a read of cell_state.
func (c *CommRegion) CellState() CommState {
	return CommState(c.cellState.Load())
}

// maxShutdownSpins bounds cell_shutdown_ok's spin. The original has no
// upper bound (spec §9 notes this as an intentional degree of freedom for
// implementations); a bound is required here so a wedged or hostile guest
// cannot hang a Go call forever, surfaced as a refusal exactly as the
// design notes suggest.
const maxShutdownSpins = 1 << 16

// ShutdownOK runs the cooperative shutdown protocol against cell and
// reports whether it consented, matching cell_shutdown_ok() in control.c:
// post the request, then poll the reply and cell_state fields, yielding the
// processor between polls, until the cell acknowledges, refuses, or the
// implementation-defined spin bound is reached.
func ShutdownOK(cell *Cell) bool {
	if cell.comm == nil {
		return true
	}
	c := cell.comm

	c.PostReply(ReplyNone)
	c.PostMessage(MsgShutdownRequest)

	for i := 0; i < maxShutdownSpins; i++ {
		switch c.Reply() {
		case ReplyShutdownOK:
			return true
		case ReplyShutdownDenied:
			return false
		}
		if state := c.CellState(); state == CommStateShutDown || state == CommStateFailed {
			return true
		}
		runtime.Gosched()
	}
	return false
}
