// Ganymede is a single-host secrets lifecycle manager built on the systemd
// credential tooling.
//
// It keeps encrypted credential blobs, consistency-checked metadata, and a
// tamper-evident audit ledger under one vault root, providing:
//   - Sealed secret storage via systemd-creds (host key and/or TPM2)
//   - Two-phase rotation with rollback-safe orchestration
//   - Policy gating for every mutating operation
//   - Hash-chained audit ledger with a derived SQLite query index
//   - systemd drop-in generation for credential delivery to services
//   - Migration of plaintext environment files into the vault
//
// Usage:
//
//	# Initialize the vault layout
//	ganymede init
//
//	# Create a credential and bind it to a service
//	ganymede create db_password --service webapp --generate
//
//	# Rotate, then retire the previous secret once consumers switched over
//	ganymede rotate db_password --generate
//	ganymede revoke db_password
//
//	# Stage and install the systemd drop-in for a service
//	ganymede dropin generate webapp
//	ganymede dropin apply webapp
//
//	# Import a plaintext environment file
//	ganymede migrate import /opt/services/webapp/.env --service webapp
//
//	# Verify the audit chain and query recent entries
//	ganymede audit verify
//	ganymede audit show --limit 20
//
//	# Run the health checks
//	ganymede health
//
// For complete documentation, see: https://github.com/mercator-hq/ganymede
package main

func main() {
	Execute()
}
