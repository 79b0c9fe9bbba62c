// Package session ties the transport, device tracker, status machine and
// command dispatcher into one module instance.
//
// A Session is an explicit owned context: every piece of mutable state lives
// on it, and two sessions never share a socket or device table.
//
//	s := session.New(session.Options{StatusSink: sink})
//	if err := s.Init(ctx, config.ModuleConfig{Port: 7000}); err != nil {
//	    return err
//	}
//	defer s.Destroy()
//	_ = s.Discover()
package session
