package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"fleetsim/internal/notify"
)

// registerStream exposes the live push channel: every broker notification
// is re-published to connected clients as a server-sent event.
func registerStream(api huma.API, cfg Config) {
	if cfg.Broker == nil {
		return
	}
	sse.Register(api, huma.Operation{
		OperationID: "stream",
		Method:      http.MethodGet,
		Path:        "/stream",
		Summary:     "Live notification stream",
	}, map[string]any{
		"event": notify.Event{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		ch, cancel := cfg.Broker.Subscribe()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if err := send.Data(evt); err != nil {
					return
				}
			}
		}
	})
}
