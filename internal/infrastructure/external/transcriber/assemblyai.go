package transcriber

import (
	"context"
	"fmt"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/speakerid-team/speaker-id/pkg/config"
)

// Word is one transcribed word with timing.
type Word struct {
	Text       string
	StartMs    int64
	EndMs      int64
	Confidence float64
	Speaker    string
}

// Segment is one diarized speaker turn.
type Segment struct {
	Speaker    string
	Text       string
	StartMs    int64
	EndMs      int64
	Confidence float64
	Words      []Word
}

// Transcriber turns an audio URL into diarized segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) ([]Segment, error)
}

// AssemblyAITranscriber implements Transcriber with the official SDK.
type AssemblyAITranscriber struct {
	client       *aai.Client
	languageCode string
}

// NewAssemblyAITranscriber constructs a transcriber from config.
func NewAssemblyAITranscriber(cfg *config.AssemblyAIConfig) *AssemblyAITranscriber {
	return &AssemblyAITranscriber{
		client:       aai.NewClient(cfg.APIKey),
		languageCode: cfg.LanguageCode,
	}
}

// Transcribe submits the audio URL and blocks until the transcript (with
// speaker labels and word timings) is ready.
func (t *AssemblyAITranscriber) Transcribe(ctx context.Context, audioURL string) ([]Segment, error) {
	params := &aai.TranscriptOptionalParams{
		SpeakerLabels: aai.Bool(true),
	}
	if t.languageCode != "" {
		params.LanguageCode = aai.TranscriptLanguageCode(t.languageCode)
	}

	transcript, err := t.client.Transcripts.TranscribeFromURL(ctx, audioURL, params)
	if err != nil {
		return nil, fmt.Errorf("assemblyai transcription failed: %w", err)
	}
	if transcript.Status == aai.TranscriptStatusError {
		msg := "unknown error"
		if transcript.Error != nil {
			msg = *transcript.Error
		}
		return nil, fmt.Errorf("assemblyai reported error: %s", msg)
	}

	segments := make([]Segment, 0, len(transcript.Utterances))
	for _, utt := range transcript.Utterances {
		segment := Segment{}
		if utt.Speaker != nil {
			segment.Speaker = *utt.Speaker
		}
		if utt.Text != nil {
			segment.Text = *utt.Text
		}
		if utt.Start != nil {
			segment.StartMs = *utt.Start
		}
		if utt.End != nil {
			segment.EndMs = *utt.End
		}
		if utt.Confidence != nil {
			segment.Confidence = *utt.Confidence
		}

		for _, w := range utt.Words {
			word := Word{}
			if w.Text != nil {
				word.Text = *w.Text
			}
			if w.Start != nil {
				word.StartMs = *w.Start
			}
			if w.End != nil {
				word.EndMs = *w.End
			}
			if w.Confidence != nil {
				word.Confidence = *w.Confidence
			}
			if w.Speaker != nil {
				word.Speaker = *w.Speaker
			}
			segment.Words = append(segment.Words, word)
		}

		segments = append(segments, segment)
	}

	return segments, nil
}
