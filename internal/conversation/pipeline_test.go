package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carecall-backend/internal/llm"
	"carecall-backend/internal/logger"
	"carecall-backend/internal/store"
)

type trainingModel struct {
	reply    string
	training *llm.TrainingModule
}

func (m *trainingModel) Reply(context.Context, []llm.HistoryTurn, llm.Profile) (string, *llm.TrainingModule, error) {
	return m.reply, m.training, nil
}

func (m *trainingModel) Analyze(context.Context, string, llm.Profile) (llm.Analysis, error) {
	return llm.Analysis{}, nil
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("audio:" + text), nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "gs://test-bucket/" + key, nil
}

func (s *fakeStorage) SignedURL(key string, _ time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

type capturingPublisher struct {
	seniorID string
	date     string
}

func (p *capturingPublisher) PublishAnalysisJob(_ context.Context, seniorID, _, date string) error {
	p.seniorID = seniorID
	p.date = date
	return nil
}

func TestHandleConversationRepliesWithAudio(t *testing.T) {
	repo := newTestRepo(t)
	st := newFakeStorage()
	pub := &capturingPublisher{}
	svc := NewService(repo, &fakeSTT{text: "요즘 입맛이 없어요"}, &trainingModel{reply: "입맛이 없으시군요."}, fakeTTS{}, logger.New(),
		Options{Storage: st, Publisher: pub})

	res, err := svc.HandleConversation(context.Background(), "senior-1", "guardian-1", "rec.mp3", []byte("raw audio"))
	if err != nil {
		t.Fatalf("handle conversation: %v", err)
	}
	if res.Training != nil {
		t.Fatalf("unexpected training result %+v", res.Training)
	}
	if len(res.Audio) == 0 || res.AudioURL == "" {
		t.Fatalf("expected reply audio and link, got %+v", res)
	}

	logs, err := repo.ListConversationLogs(context.Background(), "senior-1", 25)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected senior and ai logs, got %d", len(logs))
	}
	// Newest first: the reply outranks the utterance.
	if logs[0].Speaker != store.SpeakerAI || logs[1].Speaker != store.SpeakerSenior {
		t.Fatalf("unexpected log order %s/%s", logs[0].Speaker, logs[1].Speaker)
	}
	for _, log := range logs {
		if log.AnalysisStatus != store.AnalysisPending {
			t.Fatalf("expected pending status, got %s", log.AnalysisStatus)
		}
		if log.AudioURL == nil {
			t.Fatal("expected an audio uri on every log")
		}
	}

	if pub.seniorID != "senior-1" || pub.date == "" {
		t.Fatalf("expected an enqueued analysis job, got %+v", pub)
	}
}

func TestHandleConversationTrainingBranch(t *testing.T) {
	repo := newTestRepo(t)
	st := newFakeStorage()
	svc := NewService(repo, &fakeSTT{text: "심심해요"}, &trainingModel{
		reply: "퀴즈를 풀어봐요!",
		training: &llm.TrainingModule{
			Type: "training", TTSPrompt: "퀴즈 시간이에요!", ModuleType: "quiz", ModuleID: "memory-1",
		},
	}, fakeTTS{}, logger.New(), Options{Storage: st})

	res, err := svc.HandleConversation(context.Background(), "senior-1", "guardian-1", "rec.mp3", []byte("raw audio"))
	if err != nil {
		t.Fatalf("handle conversation: %v", err)
	}
	if res.Training == nil {
		t.Fatal("expected a training result")
	}
	if res.TrainingAudioURL == "" {
		t.Fatal("expected a signed training audio link")
	}
	if len(res.Audio) != 0 {
		t.Fatal("training branch should not return raw reply audio")
	}

	logs, err := repo.ListConversationLogs(context.Background(), "senior-1", 25)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Transcript != "퀴즈 시간이에요!" {
		t.Fatalf("expected the training prompt to be logged, got %q", logs[0].Transcript)
	}
}

func TestHandleConversationWithoutStorage(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestService(t, repo, &fakeSTT{text: "hello"}, &fakeModel{reply: "hi"}, Options{})

	_, err := svc.HandleConversation(context.Background(), "senior-1", "guardian-1", "rec.mp3", []byte("audio"))
	if err == nil {
		t.Fatal("expected an error without object storage")
	}
}

func TestHandleConversationEmptyTranscript(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, &fakeSTT{text: ""}, &fakeModel{reply: "hi"}, fakeTTS{}, logger.New(),
		Options{Storage: newFakeStorage()})

	_, err := svc.HandleConversation(context.Background(), "senior-1", "guardian-1", "rec.mp3", []byte("audio"))
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}

	logs, err := repo.ListConversationLogs(context.Background(), "senior-1", 25)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no logs, got %d", len(logs))
	}
}
