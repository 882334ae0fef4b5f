// Package process supervises the transceiver daemon when the bridge runs it
// as a child process.
//
// Most installations run the radio daemon (rfd) as its own service and the
// bridge only connects to its socket. On small single-board deployments the
// bridge can own the daemon instead: the Supervisor starts it, captures its
// output into the structured log, and restarts it with exponential backoff
// when it exits. A run that stays up for StableAfter resets the backoff.
//
// Example usage:
//
//	sup := process.NewSupervisor(process.Config{
//	    Name:   "rfd",
//	    Binary: "/usr/local/bin/rfd",
//	    Args:   []string{"--socket", "/run/rfd.sock"},
//	})
//	sup.SetLogger(log)
//
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
