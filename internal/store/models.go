// Package store persists calls, turns, conversation logs, analysis
// reports and quiz submissions with gorm.
package store

import "time"

// Speaker values recorded on turns and conversation logs.
const (
	SpeakerSenior = "senior"
	SpeakerAI     = "ai"
)

// Analysis status values on conversation logs.
const (
	AnalysisPending  = "pending"
	AnalysisComplete = "complete"
)

// Call is one voice session between a senior and the assistant.
type Call struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	SeniorID  string `gorm:"type:varchar(64);index;not null"`
	StartedAt time.Time
	EndedAt   *time.Time
	Summary   *string `gorm:"type:text"`
	Mood      *string `gorm:"type:varchar(32)"`
	RiskLevel *string `gorm:"type:varchar(16)"`
}

func (Call) TableName() string { return "calls" }

// Turn is a single utterance inside a call. Chronological order is the
// auto-increment id, which is stable even when two turns land in the
// same wall-clock instant.
type Turn struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	CallID    string `gorm:"type:varchar(36);index;not null"`
	Speaker   string `gorm:"type:varchar(16);not null"`
	Text      string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (Turn) TableName() string { return "turns" }

// ConversationLog is one utterance in the object-storage pipeline,
// kept per senior for guardian review and daily analysis.
type ConversationLog struct {
	ID             string `gorm:"type:varchar(26);primaryKey"`
	SeniorID       string `gorm:"type:varchar(64);index:idx_logs_senior_ts;not null"`
	GuardianID     string `gorm:"type:varchar(64);index;not null"`
	Speaker        string `gorm:"type:varchar(16);not null"`
	Transcript     string `gorm:"type:text;not null"`
	AudioURL       *string
	AnalysisStatus string    `gorm:"type:varchar(16);not null;default:pending"`
	Timestamp      time.Time `gorm:"index:idx_logs_senior_ts"`
}

func (ConversationLog) TableName() string { return "conversation_logs" }

// AnalysisReport is the per-senior per-day digest produced by the
// analysis worker.
type AnalysisReport struct {
	ID           string `gorm:"type:varchar(26);primaryKey"`
	SeniorID     string `gorm:"type:varchar(64);uniqueIndex:idx_report_senior_date;not null"`
	GuardianID   string `gorm:"type:varchar(64);index;not null"`
	Date         string `gorm:"type:varchar(10);uniqueIndex:idx_report_senior_date;not null"`
	Sentiment    string `gorm:"type:varchar(32)"`
	WordCount    int
	TTR          float64
	SpeakingRate float64
	Summary      string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AnalysisReport) TableName() string { return "analysis_reports" }

// QuizSubmission stores the raw answers exactly as submitted so the
// scoring model can change without a migration.
type QuizSubmission struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	SeniorID    string `gorm:"type:varchar(64);index;not null"`
	QuizID      string `gorm:"type:varchar(64);not null"`
	Answers     string `gorm:"type:text;not null"`
	SubmittedAt time.Time
}

func (QuizSubmission) TableName() string { return "quiz_submissions" }

// Senior is the care recipient profile used to personalize prompts.
type Senior struct {
	ID          string `gorm:"type:varchar(64);primaryKey"`
	GuardianID  string `gorm:"type:varchar(64);index"`
	Name        string `gorm:"type:varchar(64)"`
	Age         int
	Preferences string `gorm:"type:text"`
}

func (Senior) TableName() string { return "seniors" }
