package bridge

import (
	"github.com/harunnryd/reliefline/pkg/realtime"
	"github.com/harunnryd/reliefline/pkg/telephony"
)

// TelephonyChannel is the caller leg of a call. *telephony.Conn implements it.
// Close must unblock a pending Recv.
type TelephonyChannel interface {
	Recv() (telephony.Frame, error)
	Send(telephony.OutboundFrame) error
	Close() error
}

// AIChannel is the realtime AI leg of a call. *realtime.Conn implements it.
// Close must unblock a pending Recv.
type AIChannel interface {
	Recv() (realtime.ServerEvent, error)
	Send(realtime.ClientEvent) error
	Close() error
}

var (
	_ TelephonyChannel = (*telephony.Conn)(nil)
	_ AIChannel        = (*realtime.Conn)(nil)
)
