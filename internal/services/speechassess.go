package services

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/pipeline"
	"github.com/openlingo/openlingo-backend/internal/utils"
)

// SpeechAssessService scores a durable recording against its target
// text. Recognition runs on Cloud Speech with word-level confidences
// and time offsets; the three scores are derived from the transcript
// match, the pause structure and the recognizer's confidence.
type SpeechAssessService interface {
	Assess(ctx context.Context, audioURL string, targetText string) (*pipeline.Assessment, error)
	Close() error
}

type speechAssessService struct {
	log          *logger.Logger
	client       *speech.Client
	bucket       BucketService
	languageCode string
	maxRetries   int
}

func NewSpeechAssessService(log *logger.Logger, bucket BucketService) (SpeechAssessService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	serviceLog := log.With("service", "SpeechAssessService")

	ctx := context.Background()
	opts := clientOptionsFromEnv()
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &speechAssessService{
		log:          serviceLog,
		client:       c,
		bucket:       bucket,
		languageCode: utils.GetEnv("SPEECH_LANGUAGE_CODE", "en-US", log),
		maxRetries:   4,
	}, nil
}

func (s *speechAssessService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechAssessService) Assess(ctx context.Context, audioURL string, targetText string) (*pipeline.Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if strings.TrimSpace(targetText) == "" {
		return nil, fmt.Errorf("target text required")
	}

	audio, mimeType, err := s.fetchAudio(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("recording at %q is empty", audioURL)
	}

	rcfg := &speechpb.RecognitionConfig{
		LanguageCode:          s.languageCode,
		Encoding:              inferSpeechEncoding(mimeType, audioURL),
		EnableWordTimeOffsets: true,
		EnableWordConfidence:  true,
	}
	req := &speechpb.RecognizeRequest{
		Config: rcfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}

	resp, err := s.retryRecognize(ctx, func() (*speechpb.RecognizeResponse, error) {
		return s.client.Recognize(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("speech recognize: %w", err)
	}

	transcript, words := parseRecognition(resp)
	assessment := scoreRecognition(targetText, transcript, words)
	s.log.Debug("Assessment computed",
		"accuracy", assessment.AccuracyScore,
		"fluency", assessment.FluencyScore,
		"pronunciation", assessment.PronunciationScore,
	)
	return &assessment, nil
}

func (s *speechAssessService) fetchAudio(ctx context.Context, audioURL string) ([]byte, string, error) {
	key := s.bucket.RecordingKeyFromURL(audioURL)
	if key == "" {
		return nil, "", fmt.Errorf("audio url %q does not reference the recording bucket", audioURL)
	}
	r, err := s.bucket.DownloadRecording(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("download recording: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read recording: %w", err)
	}
	return data, recordingContentType(key, ""), nil
}

func inferSpeechEncoding(mimeType string, uri string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(uri))

	switch {
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "webm") || ext == ".webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

type assessedWord struct {
	word       string
	startSec   float64
	endSec     float64
	confidence float64
}

func parseRecognition(resp *speechpb.RecognizeResponse) (string, []assessedWord) {
	if resp == nil || len(resp.Results) == 0 {
		return "", nil
	}
	var full strings.Builder
	words := []assessedWord{}
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(strings.TrimSpace(alt.Transcript))
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			words = append(words, assessedWord{
				word:       w.Word,
				startSec:   durToSec(w.StartTime),
				endSec:     durToSec(w.EndTime),
				confidence: float64(w.Confidence),
			})
		}
	}
	return strings.TrimSpace(full.String()), words
}

func scoreRecognition(targetText, transcript string, words []assessedWord) pipeline.Assessment {
	return pipeline.Assessment{
		AccuracyScore:      scoreAccuracy(targetText, transcript),
		FluencyScore:       scoreFluency(words),
		PronunciationScore: scorePronunciation(words),
	}
}

// scoreAccuracy compares normalized word sequences by edit distance:
// 100 means the transcript matches the target exactly.
func scoreAccuracy(targetText, transcript string) float64 {
	target := normalizeWords(targetText)
	spoken := normalizeWords(transcript)
	if len(target) == 0 {
		return 0
	}
	if len(spoken) == 0 {
		return 0
	}
	dist := wordEditDistance(target, spoken)
	denom := len(target)
	if len(spoken) > denom {
		denom = len(spoken)
	}
	score := (1 - float64(dist)/float64(denom)) * 100
	return clampScore(score)
}

// scoreFluency starts at 100 and charges for pauses between words.
// Gaps under 300ms are free; longer gaps cost proportionally, capped
// per gap.
func scoreFluency(words []assessedWord) float64 {
	if len(words) == 0 {
		return 0
	}
	if len(words) == 1 {
		return 100
	}
	const freeGapSec = 0.3
	const penaltyPerSec = 25.0
	const maxGapPenalty = 30.0
	score := 100.0
	for i := 1; i < len(words); i++ {
		gap := words[i].startSec - words[i-1].endSec
		if gap <= freeGapSec {
			continue
		}
		penalty := (gap - freeGapSec) * penaltyPerSec
		if penalty > maxGapPenalty {
			penalty = maxGapPenalty
		}
		score -= penalty
	}
	return clampScore(score)
}

// scorePronunciation is the mean recognizer confidence over words.
func scorePronunciation(words []assessedWord) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, w := range words {
		if w.confidence > 0 {
			sum += w.confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return clampScore(sum / float64(n) * 100)
}

func normalizeWords(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\'':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, s)
	return strings.Fields(cleaned)
}

func wordEditDistance(a, b []string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(minInt(curr[j-1]+1, prev[j]+1), prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return math.Round(v*10) / 10
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

func (s *speechAssessService) retryRecognize(ctx context.Context, fn func() (*speechpb.RecognizeResponse, error)) (*speechpb.RecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}
