// Package ca defines the common Channel Access value model shared by the
// bridge, the codec and the high-level server: data types, alarm status and
// severity, event masks, EPICS timestamps and the PV attribute set.
//
// The types here are plain data. All behavior (dispatch, encoding, alarm
// derivation) lives in the packages that consume them.
package ca
