package track

import "github.com/tunecraft/api/internal/model"

// KindSpec carries the per-kind wiring: which push-channel event names the
// backend uses for this kind and which payload fields its results arrive
// under. The tracking engine itself is kind-agnostic; this table is the only
// place kind differences live.
type KindSpec struct {
	Kind model.JobKind

	ProgressEvent string
	CompleteEvent string
	FailureEvent  string

	// AudioFields is the priority-ordered list of payload keys that may hold
	// a result's audio URL for this kind.
	AudioFields []string

	// VariantFields is the priority-ordered list of payload keys a variant
	// array may appear under in a completion event.
	VariantFields []string

	// FallbackETASeconds is a one-time linear display estimate for kinds
	// whose backend never reports an ETA. Zero means the server provides it.
	FallbackETASeconds int
}

// Payload keys shared by every kind.
var (
	nameFields  = []string{"name", "title", "display_name"}
	coverFields = []string{"image_url", "cover_url", "image_large_url"}
)

var kindSpecs = map[model.JobKind]KindSpec{
	model.KindStems: {
		Kind:          model.KindStems,
		ProgressEvent: "stems.progress",
		CompleteEvent: "stems.complete",
		FailureEvent:  "stems.failed",
		AudioFields:   []string{"url", "audio_url", "stem_url"},
		VariantFields: []string{"stems", "results"},
	},
	model.KindRemix: {
		Kind:          model.KindRemix,
		ProgressEvent: "remix.progress",
		CompleteEvent: "remix.complete",
		FailureEvent:  "remix.failed",
		AudioFields:   []string{"audio_url", "stream_audio_url", "remix_url"},
		VariantFields: []string{"versions", "results"},
	},
	model.KindCover: {
		Kind:          model.KindCover,
		ProgressEvent: "cover.progress",
		CompleteEvent: "cover.complete",
		FailureEvent:  "cover.failed",
		AudioFields:   []string{"audio_url", "cover_audio_url", "stream_audio_url"},
		VariantFields: []string{"versions", "results"},
	},
	model.KindAudioToMIDI: {
		Kind:               model.KindAudioToMIDI,
		ProgressEvent:      "midi.progress",
		CompleteEvent:      "midi.complete",
		FailureEvent:       "midi.failed",
		AudioFields:        []string{"midi_url", "url", "file_url"},
		VariantFields:      []string{"tracks", "results"},
		FallbackETASeconds: 60,
	},
	model.KindOneShot: {
		Kind:               model.KindOneShot,
		ProgressEvent:      "oneshot.progress",
		CompleteEvent:      "oneshot.complete",
		FailureEvent:       "oneshot.failed",
		AudioFields:        []string{"audio_url", "url", "sample_url"},
		VariantFields:      []string{"samples", "results"},
		FallbackETASeconds: 30,
	},
}

// SpecFor returns the wiring table entry for a job kind
func SpecFor(kind model.JobKind) KindSpec {
	return kindSpecs[kind]
}

// EventNames returns the channel event names to subscribe for this kind
func (s KindSpec) EventNames() []string {
	return []string{s.ProgressEvent, s.CompleteEvent, s.FailureEvent}
}

// Categorize maps a wire event name to its category
func (s KindSpec) Categorize(name string) (model.EventCategory, bool) {
	switch name {
	case s.ProgressEvent:
		return model.EventProgress, true
	case s.CompleteEvent:
		return model.EventComplete, true
	case s.FailureEvent:
		return model.EventFailure, true
	}
	return "", false
}
