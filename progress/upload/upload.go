// Package upload describes progress events for the image pipeline
// (spec.md §4.2): chunked receipt, verification, format conversion, and
// promotion to READY.
package upload

// Phase is a stage in an image's path from UPLOADING to READY.
type Phase int

const (
	PhaseReceiving  Phase = iota // append_chunk is writing to the staging file.
	PhaseVerifying               // finalize_upload checking size and computing checksum.
	PhaseConverting              // conversion worker is transcoding to RAW.
	PhaseCommit                  // atomic rename into the image root.
	PhaseDone                    // image reached READY.
)

// Event describes a single image-pipeline progress update.
type Event struct {
	Phase      Phase
	BytesTotal int64 // declared_size; -1 if unknown.
	BytesDone  int64 // bytes written so far (receiving phase only).
}
