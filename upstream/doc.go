// Package upstream holds what the collaborator clients share: per-service
// HTTP configuration, a rate-limited JSON client that classifies failures,
// and named-instance lookup.
//
// The concrete collaborators live in the sub-packages greenwave, waiverdb,
// koji, mbs and distgit.
package upstream
