package call

import (
	"log/slog"
	"sync"

	"github.com/mossy-p/webrtc-calling/lib/logger/sl"
)

// resources owns the capture handle and the connection of one session and
// releases both exactly once, whichever of them was actually acquired.
type resources struct {
	media LocalMedia
	conn  Connection
	once  sync.Once
	log   *slog.Logger
}

func (r *resources) release() {
	r.once.Do(func() {
		if r.conn != nil {
			r.conn.DetachHandlers()
			if err := r.conn.Close(); err != nil {
				r.log.Warn("failed to close connection", sl.Err(err))
			}
		}
		if r.media != nil {
			r.media.Stop()
		}
	})
}
