// SPDX-License-Identifier: MIT
package transport

import (
	applog "beatlight/internal/log"
)

// LoggingTransport implements Transport by logging each event at debug
// level instead of sending it anywhere. It is the default fallback for an
// unrecognized or empty TransportEndpoint.Kind.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("transport: using logging transport")
	return &LoggingTransport{}
}

// Send logs data and never fails.
func (lt *LoggingTransport) Send(data any) error {
	applog.Debugf("transport: %T %+v", data, data)
	return nil
}

// Close is a no-op.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
