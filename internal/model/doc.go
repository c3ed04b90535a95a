// Package model defines the course and task records shared by the local
// store, the remote adapters and the sync engine.
//
// # Records
//
// Two kinds of record exist, courses and tasks. They differ in their fields
// but are identical in how they are synchronized, so both implement Record:
//
//	var rec model.Record = &model.Course{ID: "c-1", Title: "Linear Algebra"}
//	fmt.Println(rec.RecordKind(), rec.RecordID(), rec.State())
//
// # Sync State
//
// Every record carries a SyncState:
//   - pending - the local copy has edits that were not pushed yet
//   - synced  - the local copy matches what was last pushed or pulled
//
// Local mutations always move a record back to pending. Only the sync engine
// moves it to synced.
//
// # Timestamps
//
// Timestamps are kept as strings because the remote service hands them over
// as strings and some of them may not parse. FormatTimestamp writes a fixed
// width UTC form so that SQL ordering on the text column is chronological;
// ParseTimestamp reports whether a value could be understood at all.
package model
