package camera

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"shutter-capture/pkg/types"
)

const (
	eventStart       = "start"
	eventStarted     = "started"
	eventStartFailed = "start_failed"
	eventStop        = "stop"
	eventStopped     = "stopped"
	eventClose       = "close"
)

var (
	stUninitialized = types.StateUninitialized.String()
	stStarting      = types.StateStarting.String()
	stCapturing     = types.StateCapturing.String()
	stStopping      = types.StateStopping.String()
	stStopped       = types.StateStopped.String()
)

// stateMachine is the capture lifecycle. Only the looper fires events.
type stateMachine struct {
	fsm *fsm.FSM
}

func newStateMachine(log *zap.SugaredLogger) *stateMachine {
	return &stateMachine{
		fsm: fsm.NewFSM(
			stUninitialized,
			fsm.Events{
				{Name: eventStart, Src: []string{stUninitialized}, Dst: stStarting},
				{Name: eventStarted, Src: []string{stStarting}, Dst: stCapturing},
				{Name: eventStartFailed, Src: []string{stStarting}, Dst: stUninitialized},
				{Name: eventStop, Src: []string{stCapturing}, Dst: stStopping},
				{Name: eventStopped, Src: []string{stStopping}, Dst: stUninitialized},
				{Name: eventClose, Src: []string{stUninitialized, stStarting, stCapturing, stStopping}, Dst: stStopped},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					log.Debugf("camera: %s -> %s (%s)", e.Src, e.Dst, e.Event)
				},
			},
		),
	}
}

func (m *stateMachine) fire(event string) error {
	return m.fsm.Event(context.Background(), event)
}

func (m *stateMachine) current() types.State {
	s, err := types.ParseState(m.fsm.Current())
	if err != nil {
		return types.StateUninitialized
	}
	return s
}

func (m *stateMachine) is(s types.State) bool {
	return m.fsm.Is(s.String())
}
