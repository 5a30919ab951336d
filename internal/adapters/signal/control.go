package signal

import "github.com/dkeye/babel/internal/core"

func (ctl *SignalWSController) handlePing(sid core.SessionID) {
	ctl.Orch.Ping(sid)
}
