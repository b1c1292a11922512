package app

import "github.com/dkeye/Mesh/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickSubscriber
	DropFrame
)

// Policy decides what happens to a subscriber whose send buffer is full.
type Policy interface {
	OnBackPressure(ch core.ChannelService, cid core.ConnID) BackpressureAction
}

// SimplePolicy kicks slow subscribers. They reconnect and re-announce.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.ChannelService, core.ConnID) BackpressureAction {
	return KickSubscriber
}

// TolerantPolicy drops the frame and keeps the subscriber.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(core.ChannelService, core.ConnID) BackpressureAction {
	return DropFrame
}
