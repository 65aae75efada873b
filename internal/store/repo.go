package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repo wraps a gorm handle with the queries the services need.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// AutoMigrate creates or updates every table this module owns.
func (r *Repo) AutoMigrate() error {
	return r.db.AutoMigrate(
		&Call{},
		&Turn{},
		&ConversationLog{},
		&AnalysisReport{},
		&QuizSubmission{},
		&Senior{},
	)
}

func (r *Repo) CreateCall(ctx context.Context, call *Call) error {
	return r.db.WithContext(ctx).Create(call).Error
}

func (r *Repo) GetCall(ctx context.Context, id string) (*Call, error) {
	var call Call
	if err := r.db.WithContext(ctx).First(&call, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &call, nil
}

// FinalizeCall stamps the end time and the analysis fields in one update.
func (r *Repo) FinalizeCall(ctx context.Context, id string, endedAt time.Time, summary, mood, riskLevel string) error {
	return r.db.WithContext(ctx).Model(&Call{}).Where("id = ?", id).Updates(map[string]any{
		"ended_at":   endedAt,
		"summary":    summary,
		"mood":       mood,
		"risk_level": riskLevel,
	}).Error
}

func (r *Repo) AppendTurn(ctx context.Context, turn *Turn) error {
	return r.db.WithContext(ctx).Create(turn).Error
}

// ListTurnsAsc returns every turn of a call in chronological order.
func (r *Repo) ListTurnsAsc(ctx context.Context, callID string) ([]Turn, error) {
	var turns []Turn
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("id ASC").
		Find(&turns).Error
	return turns, err
}

func (r *Repo) CreateConversationLog(ctx context.Context, log *ConversationLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListConversationLogs returns a senior's logs newest first, capped at limit.
func (r *Repo) ListConversationLogs(ctx context.Context, seniorID string, limit int) ([]ConversationLog, error) {
	var logs []ConversationLog
	err := r.db.WithContext(ctx).
		Where("senior_id = ?", seniorID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// ListLogsForSeniorDay returns the day's logs oldest first for metric
// computation. from is inclusive, to exclusive.
func (r *Repo) ListLogsForSeniorDay(ctx context.Context, seniorID string, from, to time.Time) ([]ConversationLog, error) {
	var logs []ConversationLog
	err := r.db.WithContext(ctx).
		Where("senior_id = ? AND timestamp >= ? AND timestamp < ?", seniorID, from, to).
		Order("timestamp ASC").
		Find(&logs).Error
	return logs, err
}

// MarkLogsComplete flips the day's pending logs to complete.
func (r *Repo) MarkLogsComplete(ctx context.Context, seniorID string, from, to time.Time) error {
	return r.db.WithContext(ctx).Model(&ConversationLog{}).
		Where("senior_id = ? AND timestamp >= ? AND timestamp < ? AND analysis_status = ?",
			seniorID, from, to, AnalysisPending).
		Update("analysis_status", AnalysisComplete).Error
}

// UpsertAnalysisReport replaces the fields of an existing senior+date
// report or inserts a new one, so the worker can safely rerun a day.
func (r *Repo) UpsertAnalysisReport(ctx context.Context, report *AnalysisReport) error {
	var existing AnalysisReport
	err := r.db.WithContext(ctx).
		Where("senior_id = ? AND date = ?", report.SeniorID, report.Date).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.WithContext(ctx).Create(report).Error
	}
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"guardian_id":   report.GuardianID,
		"sentiment":     report.Sentiment,
		"word_count":    report.WordCount,
		"ttr":           report.TTR,
		"speaking_rate": report.SpeakingRate,
		"summary":       report.Summary,
	}).Error
}

func (r *Repo) ListReportsByGuardian(ctx context.Context, guardianID string) ([]AnalysisReport, error) {
	var reports []AnalysisReport
	err := r.db.WithContext(ctx).
		Where("guardian_id = ?", guardianID).
		Order("date DESC").
		Find(&reports).Error
	return reports, err
}

func (r *Repo) GetSenior(ctx context.Context, id string) (*Senior, error) {
	var senior Senior
	if err := r.db.WithContext(ctx).First(&senior, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &senior, nil
}

func (r *Repo) CreateQuizSubmission(ctx context.Context, sub *QuizSubmission) error {
	return r.db.WithContext(ctx).Create(sub).Error
}
