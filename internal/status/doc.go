// Package status implements the connection state machine and the sinks that
// transitions are reported to.
//
// A session walks Connecting -> UnknownWarning ("Ready to discover") once its
// socket is bound, then Ok on the first discovery reply. Socket failures move
// it to ConnectionFailure and teardown always ends in Disconnected.
package status
