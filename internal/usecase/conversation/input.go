package conversation

import (
	"fmt"

	"github.com/speakerid-team/speaker-id/internal/domain/entities"
)

// WordInput is one word timing inside an utterance payload.
type WordInput struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"start"`
	EndMs      int64   `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    *string `json:"speaker,omitempty"`
}

// SegmentInput is the structured payload shape: one diarized segment as the
// transcription pipeline emits it.
type SegmentInput struct {
	Speaker    string      `json:"speaker"`
	Text       string      `json:"text"`
	StartMs    int64       `json:"start"`
	EndMs      int64       `json:"end"`
	Confidence float64     `json:"confidence"`
	Words      []WordInput `json:"words,omitempty"`
}

// ArgsInput is the discrete-arguments shape kept for older callers: speaker
// and timing as separate named fields, no word detail.
type ArgsInput struct {
	SpeakerName string  `json:"speaker_name"`
	Text        string  `json:"text"`
	StartMs     int64   `json:"start_ms"`
	EndMs       int64   `json:"end_ms"`
	Confidence  float64 `json:"confidence"`
	AudioKey    string  `json:"audio_file,omitempty"`
}

// UtteranceInput is the tagged union over the two historical payload shapes.
// Exactly one variant must be set; Normalize collapses both into one
// internal record so nothing downstream branches on calling convention.
type UtteranceInput struct {
	Segment *SegmentInput `json:"segment,omitempty"`
	Args    *ArgsInput    `json:"args,omitempty"`
}

// NormalizedUtterance is the single internal write shape.
type NormalizedUtterance struct {
	UtteranceKey string
	SpeakerName  string
	Text         string
	StartTime    string
	EndTime      string
	StartMs      int64
	EndMs        int64
	Confidence   float64
	AudioKey     string
	Words        []WordInput
}

// Normalize validates the tagged union and produces the internal record for
// the utterance at position index within conversationKey. Missing speaker
// names fall back to the default speaker; clock strings are derived from the
// millisecond range.
func Normalize(input UtteranceInput, conversationKey string, index int) (NormalizedUtterance, error) {
	if (input.Segment == nil) == (input.Args == nil) {
		return NormalizedUtterance{}, fmt.Errorf("utterance input must set exactly one of segment or args")
	}

	var normalized NormalizedUtterance
	if input.Segment != nil {
		seg := input.Segment
		normalized = NormalizedUtterance{
			SpeakerName: seg.Speaker,
			Text:        seg.Text,
			StartMs:     seg.StartMs,
			EndMs:       seg.EndMs,
			Confidence:  seg.Confidence,
			Words:       seg.Words,
		}
	} else {
		args := input.Args
		normalized = NormalizedUtterance{
			SpeakerName: args.SpeakerName,
			Text:        args.Text,
			StartMs:     args.StartMs,
			EndMs:       args.EndMs,
			Confidence:  args.Confidence,
			AudioKey:    args.AudioKey,
		}
	}

	if normalized.StartMs < 0 || normalized.EndMs < normalized.StartMs {
		return NormalizedUtterance{}, fmt.Errorf("invalid time range: start %dms end %dms", normalized.StartMs, normalized.EndMs)
	}
	if normalized.SpeakerName == "" {
		normalized.SpeakerName = entities.DefaultSpeakerName
	}

	normalized.UtteranceKey = fmt.Sprintf("utterance_%03d", index)
	normalized.StartTime = entities.FormatClock(normalized.StartMs)
	normalized.EndTime = entities.FormatClock(normalized.EndMs)
	if normalized.AudioKey == "" {
		normalized.AudioKey = entities.UtteranceAudioKey(conversationKey, index)
	}

	return normalized, nil
}
