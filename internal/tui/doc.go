// Package tui implements the interactive watch dashboard.
//
// The dashboard shows the session status and a live device table. Session
// callbacks reach the running program through a Bridge, which converts them
// into StatusMsg and DeviceMsg. User actions run as commands against a
// Controller and come back as ResultMsg.
//
//	bridge := tui.NewBridge()
//	sess := session.New(session.Options{StatusSink: bridge, OnDevice: bridge.DeviceFound})
//	p := tea.NewProgram(tui.NewModel(sess), tea.WithAltScreen())
//	bridge.Attach(p)
package tui
