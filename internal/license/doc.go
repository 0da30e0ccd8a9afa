// Package license implements the machine-bound trial and activation core
// for the POS client.
//
// # Architecture Overview
//
// The subsystem is composed bottom-up:
//
//	- security.FingerprintService: stable machine signature from hardware
//	- security.CryptoHelper: machine-bound encryption and authentication
//	- SecureStorage: dual-backend encrypted persistence with self-healing
//	- Service: the derived license state machine and feature gating
//
// Only Service is consumed by the rest of the application; feature call
// sites ask Service.IsFeatureAllowed and nothing else.
//
// # State Derivation
//
// No "current state" is persisted. Status is derived on every query from
// the stored record, the live clock, the live machine signature, and an
// optional cached remote time sample:
//
//	1. No loadable record            -> Invalid
//	2. Signature mismatch            -> MachineMismatch (even if activated)
//	3. Activated and signature match -> Activated
//	4. Clock behind lastRunDate      -> ClockTampered (5 minute tolerance)
//	5. Clock behind remote sample    -> ClockTampered (10 minute tolerance)
//	6. Past trial window             -> TrialExpired
//	7. Otherwise                     -> TrialActive
//
// # Persistence
//
// The record is sealed with an HMAC over its content fields, encrypted as
// a single blob, and written to both the OS keyring and a hidden backup
// file. Reads prefer the keyring and self-heal it from the backup when it
// is missing or corrupt. A record failing hash verification is treated as
// absent, never partially trusted.
//
// # Activation
//
// Keys have the form XXXX-XXXX-XXXX-XXXX where the final group is a
// truncated hash binding the key to one machine signature. Keys are
// issued per machine by the license-keygen tool.
package license
