package model

// Job kinds
type JobKind string

const (
	KindStems       JobKind = "stems"
	KindRemix       JobKind = "remix"
	KindCover       JobKind = "cover"
	KindAudioToMIDI JobKind = "audio-to-midi"
	KindOneShot     JobKind = "one-shot"
)

var ValidKinds = []JobKind{
	KindStems, KindRemix, KindCover, KindAudioToMIDI, KindOneShot,
}

// Valid reports whether k names a known job kind
func (k JobKind) Valid() bool {
	for _, v := range ValidKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Label returns the user-facing name of the kind
func (k JobKind) Label() string {
	switch k {
	case KindStems:
		return "Stems"
	case KindRemix:
		return "Remix"
	case KindCover:
		return "Cover"
	case KindAudioToMIDI:
		return "MIDI"
	case KindOneShot:
		return "Sound"
	default:
		return string(k)
	}
}

// Job status
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusSubmitting JobStatus = "submitting"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Archive status
type ArchiveStatus string

const (
	ArchiveStatusQueued    ArchiveStatus = "queued"
	ArchiveStatusRunning   ArchiveStatus = "running"
	ArchiveStatusSucceeded ArchiveStatus = "succeeded"
	ArchiveStatusFailed    ArchiveStatus = "failed"
)
