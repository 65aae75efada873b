// Package conversation runs the voice turn pipeline: recognize the
// senior's speech, generate a companion reply, synthesize it, and keep
// the durable record of everything said.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"carecall-backend/internal/llm"
	"carecall-backend/internal/logger"
	"carecall-backend/internal/storage"
	"carecall-backend/internal/store"
)

// Transcriber converts audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	TranscribeURL(ctx context.Context, audioURL string) (string, error)
}

// Replier generates companion replies and end-of-call analyses.
type Replier interface {
	Reply(ctx context.Context, history []llm.HistoryTurn, profile llm.Profile) (string, *llm.TrainingModule, error)
	Analyze(ctx context.Context, transcript string, profile llm.Profile) (llm.Analysis, error)
}

// Synthesizer converts reply text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Locker serializes replies per call.
type Locker interface {
	AcquireCallLock(ctx context.Context, callID string) (bool, error)
	ReleaseCallLock(ctx context.Context, callID string) error
}

// ProfileCache caches senior profiles between calls.
type ProfileCache interface {
	GetSeniorProfile(ctx context.Context, seniorID string, out any) (bool, error)
	SetSeniorProfile(ctx context.Context, seniorID string, profile any) error
}

// JobPublisher enqueues daily analysis work.
type JobPublisher interface {
	PublishAnalysisJob(ctx context.Context, seniorID, guardianID, date string) error
}

// Defaults used when the analysis model returns nothing usable.
const (
	defaultSummary   = "대화 요약을 생성할 수 없습니다."
	defaultMood      = "neutral"
	defaultRiskLevel = "low"

	defaultTrainingPrompt = "Let's try a quick brain exercise!"
)

// Static profile used when a senior has no stored record.
var fallbackProfile = llm.Profile{Name: "어르신", Age: 75, Preferences: "가족, 건강"}

type Service struct {
	repo      *store.Repo
	stt       Transcriber
	model     Replier
	tts       Synthesizer
	locks     Locker
	cache     ProfileCache
	storage   storage.Storage
	publisher JobPublisher
	log       *logger.Logger

	contextWindow int
	historySize   int
	signedURLTTL  time.Duration
}

// Options carries the optional collaborators and tuning knobs.
type Options struct {
	Locks         Locker
	Cache         ProfileCache
	Storage       storage.Storage
	Publisher     JobPublisher
	ContextWindow int
	HistorySize   int
	SignedURLTTL  time.Duration
}

func NewService(repo *store.Repo, stt Transcriber, model Replier, tts Synthesizer, log *logger.Logger, opts Options) *Service {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 10
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 5
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = time.Hour
	}
	return &Service{
		repo:          repo,
		stt:           stt,
		model:         model,
		tts:           tts,
		locks:         opts.Locks,
		cache:         opts.Cache,
		storage:       opts.Storage,
		publisher:     opts.Publisher,
		log:           log,
		contextWindow: opts.ContextWindow,
		historySize:   opts.HistorySize,
		signedURLTTL:  opts.SignedURLTTL,
	}
}

type StartResult struct {
	CallID string
	AIText string
	TTSURL *string
}

type ReplyResult struct {
	AIText     string
	SeniorText string
	TTSURL     *string
}

type EndResult struct {
	Summary   string
	Mood      string
	RiskLevel string
}

// PipelineResult is the outcome of the object-storage pipeline: either
// a training module handoff or reply audio with a signed link.
type PipelineResult struct {
	Training         *llm.TrainingModule
	TrainingAudioURL string
	Audio            []byte
	AudioURL         string
}

// StartCall opens a call and returns the model's opening greeting. The
// call record is created first; a greeting failure leaves a turn-less
// call behind rather than no record of the attempt.
func (s *Service) StartCall(ctx context.Context, seniorID string) (*StartResult, error) {
	call := &store.Call{
		ID:        uuid.NewString(),
		SeniorID:  seniorID,
		StartedAt: time.Now(),
	}
	if err := s.repo.CreateCall(ctx, call); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}

	profile := s.profile(ctx, seniorID)
	greeting, _, err := s.model.Reply(ctx, nil, profile)
	if err != nil {
		return nil, upstream("generate greeting", err)
	}

	if err := s.repo.AppendTurn(ctx, &store.Turn{
		CallID:  call.ID,
		Speaker: store.SpeakerAI,
		Text:    greeting,
	}); err != nil {
		return nil, fmt.Errorf("append greeting turn: %w", err)
	}

	res := &StartResult{CallID: call.ID, AIText: greeting}
	res.TTSURL, err = s.synthesizeAndStore(ctx, call.SeniorID, greeting)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SubmitReply runs one turn: transcribe, persist the senior's words,
// generate and persist the reply, synthesize it. The senior's turn is
// the durability point: once stored it survives any later failure.
func (s *Service) SubmitReply(ctx context.Context, seniorID, callID string, audio []byte, mimeType string) (*ReplyResult, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	call, err := s.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.SeniorID != seniorID {
		return nil, fmt.Errorf("call %s: %w", callID, gorm.ErrRecordNotFound)
	}

	if s.locks != nil {
		ok, err := s.locks.AcquireCallLock(ctx, callID)
		if err != nil {
			// A lock-store outage should not take conversations down.
			s.log.WithField("call_id", callID).WithError(err).Warn("call lock unavailable, proceeding")
		} else if !ok {
			return nil, ErrCallBusy
		} else {
			defer func() {
				if err := s.locks.ReleaseCallLock(context.WithoutCancel(ctx), callID); err != nil {
					s.log.WithField("call_id", callID).WithError(err).Warn("release call lock")
				}
			}()
		}
	}

	seniorText, err := s.stt.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return nil, upstream("transcribe audio", err)
	}
	if strings.TrimSpace(seniorText) == "" {
		return nil, ErrEmptyTranscript
	}

	if err := s.repo.AppendTurn(ctx, &store.Turn{
		CallID:  callID,
		Speaker: store.SpeakerSenior,
		Text:    seniorText,
	}); err != nil {
		return nil, fmt.Errorf("append senior turn: %w", err)
	}

	turns, err := s.repo.ListTurnsAsc(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	history := toHistory(Window(turns, s.contextWindow))

	profile := s.profile(ctx, seniorID)
	aiText, _, err := s.model.Reply(ctx, history, profile)
	if err != nil {
		s.log.WithField("call_id", callID).WithError(err).Warn("reply generation failed, ai turn missing")
		return nil, upstream("generate reply", err)
	}

	if err := s.repo.AppendTurn(ctx, &store.Turn{
		CallID:  callID,
		Speaker: store.SpeakerAI,
		Text:    aiText,
	}); err != nil {
		s.log.WithField("call_id", callID).WithError(err).Warn("persist ai turn failed, record is partial")
		return nil, fmt.Errorf("append ai turn: %w", err)
	}

	res := &ReplyResult{AIText: aiText, SeniorText: seniorText}
	res.TTSURL, err = s.synthesizeAndStore(ctx, seniorID, aiText)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EndCall closes a call and stores the summary, mood and risk level
// derived from the full transcript.
func (s *Service) EndCall(ctx context.Context, seniorID, callID string) (*EndResult, error) {
	call, err := s.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.SeniorID != seniorID {
		return nil, fmt.Errorf("call %s: %w", callID, gorm.ErrRecordNotFound)
	}

	turns, err := s.repo.ListTurnsAsc(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	if len(turns) == 0 {
		return nil, ErrNoTurns
	}

	profile := s.profile(ctx, seniorID)
	analysis, err := s.model.Analyze(ctx, transcript(turns), profile)
	if err != nil {
		if !errors.Is(err, llm.ErrAnalysisParse) {
			return nil, upstream("analyze call", err)
		}
		s.log.WithField("call_id", callID).WithError(err).Warn("analysis unparseable, using defaults")
	}
	if analysis.Summary == "" {
		analysis.Summary = defaultSummary
	}
	if analysis.Mood == "" {
		analysis.Mood = defaultMood
	}
	if analysis.RiskLevel == "" {
		analysis.RiskLevel = defaultRiskLevel
	}

	if err := s.repo.FinalizeCall(ctx, callID, time.Now(), analysis.Summary, analysis.Mood, analysis.RiskLevel); err != nil {
		return nil, fmt.Errorf("finalize call: %w", err)
	}
	return &EndResult{
		Summary:   analysis.Summary,
		Mood:      analysis.Mood,
		RiskLevel: analysis.RiskLevel,
	}, nil
}

// HandleConversation is the object-storage pipeline: the raw recording
// is uploaded first, recognized through a signed link, and the reply is
// either a training module or synthesized audio. Every utterance lands
// in conversation_logs for guardian review and daily analysis.
func (s *Service) HandleConversation(ctx context.Context, seniorID, guardianID, filename string, audio []byte) (*PipelineResult, error) {
	if s.storage == nil {
		return nil, errors.New("conversation: object storage is not configured")
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	rawKey := fmt.Sprintf("conversations/%s/raw/%s-%s", seniorID, ulid.Make().String(), filename)
	rawURI, err := s.storage.Upload(ctx, rawKey, audio, "audio/mpeg")
	if err != nil {
		return nil, upstream("upload recording", err)
	}

	rawURL, err := s.storage.SignedURL(rawKey, s.signedURLTTL)
	if err != nil {
		return nil, upstream("sign recording url", err)
	}
	seniorText, err := s.stt.TranscribeURL(ctx, rawURL)
	if err != nil {
		return nil, upstream("transcribe recording", err)
	}
	if strings.TrimSpace(seniorText) == "" {
		return nil, ErrEmptyTranscript
	}

	history, err := s.recentLogHistory(ctx, seniorID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history = append(history, llm.HistoryTurn{Speaker: store.SpeakerSenior, Text: seniorText})

	profile := s.profile(ctx, seniorID)
	aiText, training, err := s.model.Reply(ctx, history, profile)
	if err != nil {
		return nil, upstream("generate reply", err)
	}

	now := time.Now()
	if err := s.repo.CreateConversationLog(ctx, &store.ConversationLog{
		ID:             ulid.Make().String(),
		SeniorID:       seniorID,
		GuardianID:     guardianID,
		Speaker:        store.SpeakerSenior,
		Transcript:     seniorText,
		AudioURL:       &rawURI,
		AnalysisStatus: store.AnalysisPending,
		Timestamp:      now,
	}); err != nil {
		return nil, fmt.Errorf("log senior utterance: %w", err)
	}

	var result *PipelineResult
	if training != nil {
		result, err = s.respondWithTraining(ctx, seniorID, guardianID, training, now)
	} else {
		result, err = s.respondWithAudio(ctx, seniorID, guardianID, aiText, now)
	}
	if err != nil {
		return nil, err
	}

	s.enqueueAnalysis(ctx, seniorID, guardianID, now)
	return result, nil
}

func (s *Service) respondWithTraining(ctx context.Context, seniorID, guardianID string, training *llm.TrainingModule, now time.Time) (*PipelineResult, error) {
	prompt := training.TTSPrompt
	if prompt == "" {
		prompt = defaultTrainingPrompt
	}

	audio, err := s.tts.Synthesize(ctx, prompt)
	if err != nil {
		return nil, upstream("synthesize training prompt", err)
	}
	key := fmt.Sprintf("conversations/%s/training/%s.mp3", seniorID, ulid.Make().String())
	uri, err := s.storage.Upload(ctx, key, audio, "audio/mpeg")
	if err != nil {
		return nil, upstream("upload training prompt", err)
	}
	url, err := s.storage.SignedURL(key, s.signedURLTTL)
	if err != nil {
		return nil, upstream("sign training url", err)
	}

	if err := s.repo.CreateConversationLog(ctx, &store.ConversationLog{
		ID:             ulid.Make().String(),
		SeniorID:       seniorID,
		GuardianID:     guardianID,
		Speaker:        store.SpeakerAI,
		Transcript:     prompt,
		AudioURL:       &uri,
		AnalysisStatus: store.AnalysisPending,
		Timestamp:      now.Add(time.Millisecond),
	}); err != nil {
		return nil, fmt.Errorf("log training prompt: %w", err)
	}
	return &PipelineResult{Training: training, TrainingAudioURL: url}, nil
}

func (s *Service) respondWithAudio(ctx context.Context, seniorID, guardianID, aiText string, now time.Time) (*PipelineResult, error) {
	audio, err := s.tts.Synthesize(ctx, aiText)
	if err != nil {
		return nil, upstream("synthesize reply", err)
	}
	key := fmt.Sprintf("conversations/%s/responses/%s.mp3", seniorID, ulid.Make().String())
	uri, err := s.storage.Upload(ctx, key, audio, "audio/mpeg")
	if err != nil {
		return nil, upstream("upload reply audio", err)
	}
	url, err := s.storage.SignedURL(key, s.signedURLTTL)
	if err != nil {
		return nil, upstream("sign reply url", err)
	}

	if err := s.repo.CreateConversationLog(ctx, &store.ConversationLog{
		ID:             ulid.Make().String(),
		SeniorID:       seniorID,
		GuardianID:     guardianID,
		Speaker:        store.SpeakerAI,
		Transcript:     aiText,
		AudioURL:       &uri,
		AnalysisStatus: store.AnalysisPending,
		Timestamp:      now.Add(time.Millisecond),
	}); err != nil {
		return nil, fmt.Errorf("log reply: %w", err)
	}
	return &PipelineResult{Audio: audio, AudioURL: url}, nil
}

// ListLogs returns a senior's recent conversation logs, newest first.
func (s *Service) ListLogs(ctx context.Context, seniorID string) ([]store.ConversationLog, error) {
	return s.repo.ListConversationLogs(ctx, seniorID, 25)
}

// recentLogHistory builds chronological model history from the latest
// conversation logs.
func (s *Service) recentLogHistory(ctx context.Context, seniorID string) ([]llm.HistoryTurn, error) {
	logs, err := s.repo.ListConversationLogs(ctx, seniorID, s.historySize)
	if err != nil {
		return nil, err
	}
	history := make([]llm.HistoryTurn, 0, len(logs)+1)
	for i := len(logs) - 1; i >= 0; i-- {
		history = append(history, llm.HistoryTurn{Speaker: logs[i].Speaker, Text: logs[i].Transcript})
	}
	return history, nil
}

// profile returns the senior's profile, preferring the cache, then the
// database, then a generic fallback so a call never fails on a missing
// record.
func (s *Service) profile(ctx context.Context, seniorID string) llm.Profile {
	if s.cache != nil {
		var cached llm.Profile
		if ok, err := s.cache.GetSeniorProfile(ctx, seniorID, &cached); err != nil {
			s.log.WithField("senior_id", seniorID).WithError(err).Warn("profile cache read")
		} else if ok {
			return cached
		}
	}

	senior, err := s.repo.GetSenior(ctx, seniorID)
	if err != nil {
		return fallbackProfile
	}
	profile := llm.Profile{Name: senior.Name, Age: senior.Age, Preferences: senior.Preferences}
	if profile.Name == "" {
		profile.Name = fallbackProfile.Name
	}

	if s.cache != nil {
		if err := s.cache.SetSeniorProfile(ctx, seniorID, profile); err != nil {
			s.log.WithField("senior_id", seniorID).WithError(err).Warn("profile cache write")
		}
	}
	return profile
}

// synthesizeAndStore voices a reply and returns a signed link. The link
// is nil when synthesis or storage is not configured; storage failures
// after a successful synthesis are logged and tolerated since the text
// reply already stands.
func (s *Service) synthesizeAndStore(ctx context.Context, seniorID, text string) (*string, error) {
	if s.tts == nil {
		return nil, nil
	}
	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return nil, upstream("synthesize reply", err)
	}
	if s.storage == nil {
		return nil, nil
	}
	key := fmt.Sprintf("calls/%s/%s.mp3", seniorID, ulid.Make().String())
	if _, err := s.storage.Upload(ctx, key, audio, "audio/mpeg"); err != nil {
		s.log.WithField("senior_id", seniorID).WithError(err).Warn("upload reply audio")
		return nil, nil
	}
	url, err := s.storage.SignedURL(key, s.signedURLTTL)
	if err != nil {
		s.log.WithField("senior_id", seniorID).WithError(err).Warn("sign reply audio url")
		return nil, nil
	}
	return &url, nil
}

// enqueueAnalysis is best effort: a broker outage must not fail a turn.
func (s *Service) enqueueAnalysis(ctx context.Context, seniorID, guardianID string, now time.Time) {
	if s.publisher == nil {
		return
	}
	date := now.Format("2006-01-02")
	if err := s.publisher.PublishAnalysisJob(ctx, seniorID, guardianID, date); err != nil {
		s.log.WithField("senior_id", seniorID).WithError(err).Warn("enqueue analysis job")
	}
}

func toHistory(turns []store.Turn) []llm.HistoryTurn {
	history := make([]llm.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		history = append(history, llm.HistoryTurn{Speaker: t.Speaker, Text: t.Text})
	}
	return history
}

// transcript flattens a call into "speaker: text" lines for analysis.
func transcript(turns []store.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(llm.SpeakerDisplay(t.Speaker) + ": " + t.Text + "\n")
	}
	return b.String()
}
