package artifact

import "path"

// Namespace prefixes for the shared object store. Inputs are written by the
// enqueuing front door; documents and transcripts are written by workers.
const (
	inputPrefix      = "videos"
	documentPrefix   = "documents"
	transcriptPrefix = "transcripts"
)

// InputKey returns the object key of a task's uploaded media file.
func InputKey(taskID, filename string) string {
	return path.Join(inputPrefix, taskID, filename)
}

// DocumentKey returns the object key of a task's assembled document.
func DocumentKey(taskID string) string {
	return path.Join(documentPrefix, taskID+".pdf")
}

// TranscriptKey returns the object key of a task's subtitle transcript.
func TranscriptKey(taskID string) string {
	return path.Join(transcriptPrefix, taskID+".srt")
}
