package ui

import "griddojo/internal/session"

type Controller interface {
	OnStart()
	OnToggle(index int)
	OnSubmit()
	OnNext()
	OnRetry()
	OnReset()
	OnCycleMode()
	OnCycleSet()
	OnQuit()
}

type View interface {
	Run() error
	Stop()
	SetController(Controller)
	SetHeader(HeaderState)
	SetSnapshot(session.Snapshot)
	FlashStatus(msg string)
}

type LayoutMode int

const (
	LayoutWide LayoutMode = iota
	LayoutMedium
	LayoutTooSmall
)

// HeaderState carries the values that change only between runs.
type HeaderState struct {
	SetID    string
	SetName  string
	Mode     string
	Quality  string
	SetCount int
}
