// Package polls manages interactive polls published by bots.
//
// A poll is announced to its chat as a regular outgoing message whose
// inline keyboard encodes one vote button per option. Votes flow back
// as callback queries; single-answer polls keep exactly one active
// vote per voter by retracting the previous choice inside the same
// transaction. Stopping a poll freezes and returns the final tally.
package polls
