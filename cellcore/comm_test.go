package cellcore

import (
	"runtime"
	"testing"
)

func TestShutdownOKUnmanagedExit(t *testing.T) {
	cell := &Cell{Config: CellConfig{Flags: FlagUnmanagedExit}}
	if !ShutdownOK(cell) {
		t.Fatal("unmanaged-exit cell should always be shutdown-ok")
	}
}

func TestShutdownOKAcceptsReply(t *testing.T) {
	cell := &Cell{comm: NewCommRegion()}

	go func() {
		for cell.comm.ReadMessage() != MsgShutdownRequest {
			runtime.Gosched()
		}
		cell.comm.PostReply(ReplyShutdownOK)
	}()

	if !ShutdownOK(cell) {
		t.Fatal("expected ok once guest posts ReplyShutdownOK")
	}
}

func TestShutdownOKAcceptsCellState(t *testing.T) {
	cell := &Cell{comm: NewCommRegion()}
	cell.comm.SetCellState(CommStateShutDown)

	if !ShutdownOK(cell) {
		t.Fatal("expected ok once cell_state reaches shut_down")
	}
}

func TestShutdownOKDenied(t *testing.T) {
	cell := &Cell{comm: NewCommRegion()}

	go func() {
		for cell.comm.ReadMessage() != MsgShutdownRequest {
			runtime.Gosched()
		}
		cell.comm.PostReply(ReplyShutdownDenied)
	}()

	if ShutdownOK(cell) {
		t.Fatal("expected refusal on ReplyShutdownDenied")
	}
}

func TestCommRegionFieldsIndependentlyOwned(t *testing.T) {
	c := NewCommRegion()
	c.PostMessage(MsgShutdownRequest)
	c.PostReply(ReplyShutdownDenied)
	c.SetCellState(CommStateShutDown)

	if c.ReadMessage() != MsgShutdownRequest {
		t.Fatal("message round-trip failed")
	}
	if c.Reply() != ReplyShutdownDenied {
		t.Fatal("reply round-trip failed")
	}
	if c.CellState() != CommStateShutDown {
		t.Fatal("cell state round-trip failed")
	}
}
