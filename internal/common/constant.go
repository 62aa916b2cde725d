// Package common contains shared constants, sentinel errors and small helpers
// used across the secure upload components.
package common

// AppVersion is reported in logs and the credential request user agent.
const AppVersion = "2.0.0"

// AnonymousGrantID is the key map entry that marks a revocable anonymous read grant.
const AnonymousGrantID = "UID:anonymous"
