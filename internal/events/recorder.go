package events

import (
	"context"

	"go.uber.org/zap"

	"fleetsim/internal/notify"
)

// Recorder drains a broker subscription into the journal.
type Recorder struct {
	writer Writer
	log    *zap.Logger
}

func NewRecorder(writer Writer, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{writer: writer, log: log}
}

// Run consumes events until ctx is cancelled or the channel closes. A
// failed insert is logged and the recorder keeps going; journal gaps are
// acceptable, blocking the simulation is not.
func (r *Recorder) Run(ctx context.Context, ch <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := r.writer.Append(ctx, evt); err != nil && ctx.Err() == nil {
				r.log.Error("journal append failed", zap.String("type", evt.Type), zap.Error(err))
			}
		}
	}
}
