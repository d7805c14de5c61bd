// Package callbacks answers callback queries raised by inline-keyboard
// taps. Each query is a one-shot: the first answer wins and repeats get
// ErrAlreadyAnswered.
package callbacks
