// Package entity turns raw message text into structure.
//
// ParseCommand decides whether an inbound message is a slash command.
// The whole message must be the command: "/weather london" is a
// command, "try /weather" is not.
//
// Parse scans outbound text for formatting spans (markdown or html).
// Candidates from all patterns are ordered left-to-right with a fixed
// priority for ties, and any candidate overlapping an accepted span is
// dropped, so entities never intersect. Markers are stripped from the
// stored text and entity offsets refer to byte positions in the
// cleaned UTF-8 string.
package entity
