// Package cli provides the interactive gophvault command-line client.
//
// It wires the vault, the save orchestrator, the attachment import and
// export pipelines and a REPL. Typical flow: unlock the vault (from the OS
// keyring when enabled), start the inactivity auto-lock, then execute user
// commands until exit.
//
// Every mutating command starts a background save; its progress is printed
// by an observer registered with the orchestrator. The REPL is started via
// App.Run, which blocks until the user exits.
package cli
