// Package command validates and sends outbound switcher commands.
//
// Only the generic hex-command path and the discovery probe are exposed. The
// switcher's routing opcodes and checksum scheme are not known, so no typed
// commands are built here.
package command
