// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package hostlog

import (
	"context"
	"time"

	"github.com/toeirei/ferry/internal/logging"
)

// recordTimeout bounds how long a handshake callback may spend writing
// to the store.
const recordTimeout = 5 * time.Second

// Recorder adapts a Store to the sshconn.HostKeyRecorder hook. Storage
// failures are logged and swallowed; the handshake proceeds regardless.
type Recorder struct {
	store *Store
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// RecordHostKey logs the observation and, when the endpoint was already
// known with a different key, writes a key_changed audit event and a
// warning. It never fails.
func (r *Recorder) RecordHostKey(host string, port int, algorithm, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	changed, err := r.store.RecordHostKey(ctx, host, port, algorithm, key)
	if err != nil {
		logging.Warnf("host log: failed to record host key for %s:%d: %v", host, port, err)
		return
	}
	if changed {
		logging.Warnf("host key for %s:%d changed (%s); previous keys kept in the host log", host, port, algorithm)
		if err := r.store.RecordEvent(ctx, host, port, EventKeyChanged, algorithm); err != nil {
			logging.Warnf("host log: failed to record key change event for %s:%d: %v", host, port, err)
		}
	}
}
