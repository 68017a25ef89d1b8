// Package domain contains the core entities of the transcription pipeline:
// jobs, transcripts, and study notes. Entities validate themselves and carry
// no persistence or transport concerns.
package domain
