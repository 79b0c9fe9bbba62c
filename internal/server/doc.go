// Package server exposes a session's action surface over HTTP and WebSocket.
//
// Routes:
//   - GET /ws: WebSocket. Clients send actions and receive status, device and
//     result messages.
//   - GET /devices: the discovered device table as JSON.
//   - GET /status: the current connection status as JSON.
//
// # Actions
//
//	{"action": "discover_device"}
//	{"action": "send_hex_command", "options": {"hex_command": "a56c...", "target_ip": "10.0.0.5"}}
//
// An optional "id" is echoed back in the matching result message.
//
// # Pushed messages
//
//	{"type": "status", "status": "ok", "message": "Device found at 10.0.0.5"}
//	{"type": "device", "device": {"address": "10.0.0.5", ...}}
//	{"type": "result", "action": "send_hex_command", "error": "Missing Target: ..."}
//
// New clients first receive the current status and one device message per
// known device.
//
// # Graceful Shutdown
//
// Start handles SIGINT and SIGTERM: it stops accepting requests, closes every
// WebSocket client and waits for their goroutines.
package server
