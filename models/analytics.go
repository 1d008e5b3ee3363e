package models

import (
	"time"

	"gorm.io/gorm"
)

// SequenceAnalytics holds denormalized per-sequence counters. The four rate
// fields and the conversion rate are always recomputed from the raw counters,
// never written independently of them.
type SequenceAnalytics struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	SequenceID uint `gorm:"not null;uniqueIndex" json:"sequence_id"`

	TotalEnrolled      int `gorm:"default:0" json:"total_enrolled"`
	ActiveProspects    int `gorm:"default:0" json:"active_prospects"`
	CompletedProspects int `gorm:"default:0" json:"completed_prospects"`
	TotalSent          int `gorm:"default:0" json:"total_sent"`
	TotalDelivered     int `gorm:"default:0" json:"total_delivered"`
	TotalOpened        int `gorm:"default:0" json:"total_opened"`
	TotalClicked       int `gorm:"default:0" json:"total_clicked"`
	TotalReplied       int `gorm:"default:0" json:"total_replied"`
	MeetingsBooked     int `gorm:"default:0" json:"meetings_booked"`

	DeliveryRate   float64 `gorm:"default:0" json:"delivery_rate"`
	OpenRate       float64 `gorm:"default:0" json:"open_rate"`
	ClickRate      float64 `gorm:"default:0" json:"click_rate"`
	ReplyRate      float64 `gorm:"default:0" json:"reply_rate"`
	ConversionRate float64 `gorm:"default:0" json:"conversion_rate"`

	LastRunAt *time.Time `json:"last_run_at"`
}

// Recompute derives the rate fields from the raw counters
func (a *SequenceAnalytics) Recompute() {
	a.DeliveryRate = rate(a.TotalDelivered, a.TotalSent)
	a.OpenRate = rate(a.TotalOpened, a.TotalSent)
	a.ClickRate = rate(a.TotalClicked, a.TotalSent)
	a.ReplyRate = rate(a.TotalReplied, a.TotalSent)
	a.ConversionRate = rate(a.MeetingsBooked, a.TotalEnrolled)
}

func rate(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// StepStat tracks per-step execution outcomes across all enrollments
type StepStat struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	StepID     uint `gorm:"not null;uniqueIndex" json:"step_id"`

	TotalExecutions int `gorm:"default:0" json:"total_executions"`
	SuccessCount    int `gorm:"default:0" json:"success_count"`
	FailedCount     int `gorm:"default:0" json:"failed_count"`
	SkippedCount    int `gorm:"default:0" json:"skipped_count"`

	SuccessRate float64 `gorm:"default:0" json:"success_rate"`
}

// Recompute derives SuccessRate from the counters
func (s *StepStat) Recompute() {
	s.SuccessRate = rate(s.SuccessCount, s.TotalExecutions)
}
