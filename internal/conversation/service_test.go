package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"carecall-backend/internal/llm"
	"carecall-backend/internal/logger"
	"carecall-backend/internal/store"
)

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Transcribe(context.Context, []byte, string) (string, error) {
	return f.text, f.err
}

func (f *fakeSTT) TranscribeURL(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeModel struct {
	reply      string
	analysis   llm.Analysis
	analyzeErr error
	replyErr   error
}

func (f *fakeModel) Reply(context.Context, []llm.HistoryTurn, llm.Profile) (string, *llm.TrainingModule, error) {
	return f.reply, nil, f.replyErr
}

func (f *fakeModel) Analyze(context.Context, string, llm.Profile) (llm.Analysis, error) {
	return f.analysis, f.analyzeErr
}

type fakeLocker struct {
	acquired bool
}

func (f *fakeLocker) AcquireCallLock(context.Context, string) (bool, error) {
	return f.acquired, nil
}

func (f *fakeLocker) ReleaseCallLock(context.Context, string) error { return nil }

func newTestDB(t *testing.T) (*store.Repo, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := store.NewRepo(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo, db
}

func newTestRepo(t *testing.T) *store.Repo {
	t.Helper()
	repo, _ := newTestDB(t)
	return repo
}

func newTestService(t *testing.T, repo *store.Repo, stt Transcriber, model Replier, opts Options) *Service {
	t.Helper()
	return NewService(repo, stt, model, nil, logger.New(), opts)
}

func TestStartCallStoresGreeting(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{}, &fakeModel{reply: "안녕하세요, 어르신!"}, Options{})

	res, err := svc.StartCall(context.Background(), "senior-1")
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	if res.CallID == "" {
		t.Fatal("expected a call id")
	}
	if res.AIText != "안녕하세요, 어르신!" {
		t.Fatalf("unexpected greeting %q", res.AIText)
	}

	turns, err := repo.ListTurnsAsc(context.Background(), res.CallID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 1 || turns[0].Speaker != store.SpeakerAI {
		t.Fatalf("expected one ai turn, got %+v", turns)
	}
}

func TestSubmitReplyAppendsBothTurns(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{text: "오늘 날씨가 좋네요"}, &fakeModel{reply: "네, 산책하기 좋은 날이에요."}, Options{})

	start, err := svc.StartCall(context.Background(), "senior-1")
	if err != nil {
		t.Fatalf("start call: %v", err)
	}

	res, err := svc.SubmitReply(context.Background(), "senior-1", start.CallID, []byte("audio"), "audio/mpeg")
	if err != nil {
		t.Fatalf("submit reply: %v", err)
	}
	if res.SeniorText != "오늘 날씨가 좋네요" {
		t.Fatalf("unexpected senior text %q", res.SeniorText)
	}
	if res.AIText == "" {
		t.Fatal("expected a non-empty reply")
	}

	turns, err := repo.ListTurnsAsc(context.Background(), start.CallID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	want := []string{store.SpeakerAI, store.SpeakerSenior, store.SpeakerAI}
	for i, turn := range turns {
		if turn.Speaker != want[i] {
			t.Fatalf("turn %d: expected speaker %s, got %s", i, want[i], turn.Speaker)
		}
	}
}

func TestSubmitReplyEmptyAudio(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{}, &fakeModel{reply: "hi"}, Options{})

	_, err := svc.SubmitReply(context.Background(), "senior-1", "any", nil, "audio/mpeg")
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestSubmitReplyEmptyTranscriptPersistsNothing(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{text: "   "}, &fakeModel{reply: "hi"}, Options{})

	start, err := svc.StartCall(context.Background(), "senior-1")
	if err != nil {
		t.Fatalf("start call: %v", err)
	}

	_, err = svc.SubmitReply(context.Background(), "senior-1", start.CallID, []byte("audio"), "audio/mpeg")
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}

	turns, err := repo.ListTurnsAsc(context.Background(), start.CallID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected only the greeting turn, got %d", len(turns))
	}
}

func TestSubmitReplyWrongSenior(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{text: "hello"}, &fakeModel{reply: "hi"}, Options{})

	start, err := svc.StartCall(context.Background(), "senior-1")
	if err != nil {
		t.Fatalf("start call: %v", err)
	}

	_, err = svc.SubmitReply(context.Background(), "senior-2", start.CallID, []byte("audio"), "audio/mpeg")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found, got %v", err)
	}
}

func TestSubmitReplyBusyCall(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{text: "hello"}, &fakeModel{reply: "hi"},
		Options{Locks: &fakeLocker{acquired: false}})

	start, err := svc.StartCall(context.Background(), "senior-1")
	if err != nil {
		t.Fatalf("start call: %v", err)
	}

	_, err = svc.SubmitReply(context.Background(), "senior-1", start.CallID, []byte("audio"), "audio/mpeg")
	if !errors.Is(err, ErrCallBusy) {
		t.Fatalf("expected ErrCallBusy, got %v", err)
	}
}

func TestEndCallFinalizes(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{text: "잘 지냈어요"}, &fakeModel{
		reply:    "다행이에요.",
		analysis: llm.Analysis{Summary: "안부 대화", Mood: "happy", RiskLevel: "low"},
	}, Options{})

	start, err := svc.StartCall(context.Background(), "senior-1")
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	if _, err := svc.SubmitReply(context.Background(), "senior-1", start.CallID, []byte("audio"), "audio/mpeg"); err != nil {
		t.Fatalf("submit reply: %v", err)
	}

	res, err := svc.EndCall(context.Background(), "senior-1", start.CallID)
	if err != nil {
		t.Fatalf("end call: %v", err)
	}
	if res.Summary != "안부 대화" || res.Mood != "happy" || res.RiskLevel != "low" {
		t.Fatalf("unexpected analysis %+v", res)
	}

	call, err := repo.GetCall(context.Background(), start.CallID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if call.EndedAt == nil {
		t.Fatal("expected ended_at to be set")
	}
	if call.Summary == nil || *call.Summary != "안부 대화" {
		t.Fatalf("expected summary to be stored, got %v", call.Summary)
	}
	if call.Mood == nil || *call.Mood != "happy" {
		t.Fatalf("expected mood to be stored, got %v", call.Mood)
	}
	if call.RiskLevel == nil || *call.RiskLevel != "low" {
		t.Fatalf("expected risk level to be stored, got %v", call.RiskLevel)
	}
}

func TestEndCallDefaultsOnUnparseableAnalysis(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{text: "hello"}, &fakeModel{
		reply:      "hi",
		analyzeErr: fmt.Errorf("%w: no json found", llm.ErrAnalysisParse),
	}, Options{})

	start, err := svc.StartCall(context.Background(), "senior-1")
	if err != nil {
		t.Fatalf("start call: %v", err)
	}

	res, err := svc.EndCall(context.Background(), "senior-1", start.CallID)
	if err != nil {
		t.Fatalf("end call: %v", err)
	}
	if res.Summary == "" || res.Mood != "neutral" || res.RiskLevel != "low" {
		t.Fatalf("expected default analysis, got %+v", res)
	}
}

func TestEndCallWithoutTurns(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{}, &fakeModel{reply: "hi"}, Options{})

	call := &store.Call{ID: "call-empty", SeniorID: "senior-1"}
	if err := repo.CreateCall(context.Background(), call); err != nil {
		t.Fatalf("create call: %v", err)
	}

	_, err := svc.EndCall(context.Background(), "senior-1", call.ID)
	if !errors.Is(err, ErrNoTurns) {
		t.Fatalf("expected ErrNoTurns, got %v", err)
	}
}

type failingTTS struct{}

func (failingTTS) Synthesize(context.Context, string) ([]byte, error) {
	return nil, errors.New("tts: server error 500")
}

func TestSubmitReplyFailedSynthesisIsUpstream(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, &fakeSTT{text: "hello"}, &fakeModel{reply: "hi"}, failingTTS{}, logger.New(), Options{})

	call := &store.Call{ID: "call-1", SeniorID: "senior-1"}
	if err := repo.CreateCall(context.Background(), call); err != nil {
		t.Fatalf("create call: %v", err)
	}

	_, err := svc.SubmitReply(context.Background(), "senior-1", call.ID, []byte("audio"), "audio/mpeg")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestStartCallFailedGreetingLeavesCallRecord(t *testing.T) {
	repo, db := newTestDB(t)
	svc := newTestService(t, repo, &fakeSTT{}, &fakeModel{replyErr: errors.New("model down")}, Options{})

	_, err := svc.StartCall(context.Background(), "senior-1")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	var calls int64
	if err := db.Model(&store.Call{}).Count(&calls).Error; err != nil {
		t.Fatalf("count calls: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the call record to remain, got %d", calls)
	}
	var turns int64
	if err := db.Model(&store.Turn{}).Count(&turns).Error; err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if turns != 0 {
		t.Fatalf("expected no turns, got %d", turns)
	}
}

func TestEndCallUnknownCall(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{}, &fakeModel{reply: "hi"}, Options{})

	_, err := svc.EndCall(context.Background(), "senior-1", "missing")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found, got %v", err)
	}
}
