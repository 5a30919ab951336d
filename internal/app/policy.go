package app

import "github.com/dkeye/babel/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room core.RoomService, sess *core.Session) BackpressureAction
}

// DropPolicy drops the frame for a slow reader and keeps it connected.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.RoomService, *core.Session) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects a reader whose send buffer is full.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.RoomService, *core.Session) BackpressureAction {
	return KickMember
}

// PolicyByName maps the slow_reader config value to a policy.
func PolicyByName(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
