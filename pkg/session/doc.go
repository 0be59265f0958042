// Package session runs one image-search session end to end.
//
// A Controller owns a single browser tab for the duration of Run. The
// setup phase moves through fixed states:
//
//	Idle -> Navigated -> ChallengeChecked -> ConsentResolved -> ImagesView -> Harvesting
//
// and the run ends in Completed or Failed. A detected challenge, a failed
// navigation or a missing images control is fatal; a missing consent
// dialog is not. Whatever the ending, once prior results were loaded the
// union of prior and newly harvested results is written back to the
// store, diagnostics are captured on failure, and a session.json record
// is left next to the results.
package session
