package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// speech-to-text recognizer
	SpeechEndpoint     string
	SpeechAPIKey       string
	SpeechSecret       string
	SpeechLanguage     string
	SpeechTimeout      time.Duration
	SpeechSpeakerNames map[string]string

	// language model (chat-completions style)
	LLMEndpoint  string
	LLMAPIKey    string
	LLMAPISecret string
	LLMRequestID string
	LLMTimeout   time.Duration

	// text-to-speech
	TTSEndpoint      string
	TTSAPIKey        string
	TTSLanguageCode  string
	TTSVoiceName     string
	TTSAudioEncoding string
	TTSTimeout       time.Duration

	StorageBucket string
	SignedURLTTL  time.Duration

	// rabbitMQ (analysis job hand-off)
	RabbitURL   string
	RabbitQueue string

	ContextWindowSize int
	ReplyHistorySize  int
}

func Load() Config {
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8000"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		if driver == "sqlite" {
			dsn = "carecall.db"
		} else {
			dsn = "app:apppass@tcp(127.0.0.1:3306)/carecall?charset=utf8mb4&parseTime=true&loc=Local"
		}
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	speechLang := os.Getenv("SPEECH_LANGUAGE")
	if speechLang == "" {
		speechLang = "ko-KR"
	}

	ttsEndpoint := os.Getenv("TTS_ENDPOINT")
	if ttsEndpoint == "" {
		ttsEndpoint = "https://texttospeech.googleapis.com/v1"
	}
	ttsLang := os.Getenv("TTS_LANGUAGE_CODE")
	if ttsLang == "" {
		ttsLang = "ko-KR"
	}
	ttsEncoding := os.Getenv("TTS_AUDIO_ENCODING")
	if ttsEncoding == "" {
		ttsEncoding = "MP3"
	}

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "analysis_jobs"
	}

	windowSize := 10
	if v := os.Getenv("CONTEXT_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			windowSize = n
		}
	}
	historySize := 5
	if v := os.Getenv("REPLY_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			historySize = n
		}
	}

	return Config{
		HTTPAddr: httpAddr,

		DBDriver: driver,
		DBDSN:    dsn,

		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		SpeechEndpoint:     os.Getenv("SPEECH_ENDPOINT"),
		SpeechAPIKey:       os.Getenv("SPEECH_API_KEY"),
		SpeechSecret:       os.Getenv("SPEECH_API_SECRET"),
		SpeechLanguage:     speechLang,
		SpeechTimeout:      durationEnv("SPEECH_TIMEOUT", 30*time.Second),
		SpeechSpeakerNames: parseSpeakerNames(os.Getenv("SPEECH_SPEAKER_NAMES")),

		LLMEndpoint:  os.Getenv("LLM_ENDPOINT"),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		LLMAPISecret: os.Getenv("LLM_API_SECRET"),
		LLMRequestID: os.Getenv("LLM_REQUEST_ID"),
		LLMTimeout:   durationEnv("LLM_TIMEOUT", 60*time.Second),

		TTSEndpoint:      ttsEndpoint,
		TTSAPIKey:        os.Getenv("TTS_API_KEY"),
		TTSLanguageCode:  ttsLang,
		TTSVoiceName:     os.Getenv("TTS_VOICE_NAME"),
		TTSAudioEncoding: ttsEncoding,
		TTSTimeout:       durationEnv("TTS_TIMEOUT", 30*time.Second),

		StorageBucket: os.Getenv("STORAGE_BUCKET"),
		SignedURLTTL:  durationEnv("SIGNED_URL_TTL", time.Hour),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: rabbitQueue,

		ContextWindowSize: windowSize,
		ReplyHistorySize:  historySize,
	}
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// parseSpeakerNames parses "1=senior,2=ai" into a diarization label map.
// Diarization labels carry no semantic role on their own; the mapping has to
// come from deployment configuration.
func parseSpeakerNames(v string) map[string]string {
	if v == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		label, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || label == "" || name == "" {
			continue
		}
		out[label] = name
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
