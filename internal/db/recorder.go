// Package db persists the execution outcome and opportunity audit trail
// over GORM/MySQL, generalized from a prior single-strategy asset-snapshot
// recorder; this core records one row per detected Opportunity and one per
// ExecutionOutcome, both keyed by opportunity ID, big.Int fields carried
// as decimal strings.
package db

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// OpportunityRecord is the database model for a detected Opportunity.
type OpportunityRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	OpportunityID     string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	Type              string    `gorm:"type:varchar(32);not null"`
	BuyChain          string    `gorm:"type:varchar(32);not null"`
	SellChain         string    `gorm:"type:varchar(32);not null"`
	BuyDex            string    `gorm:"type:varchar(64)"`
	SellDex           string    `gorm:"type:varchar(64)"`
	AmountIn          string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	ExpectedProfitUsd float64   `gorm:"not null"`
	ProfitPercentage  float64   `gorm:"not null"`
	GasEstimateUsd    float64   `gorm:"not null"`
	Confidence        float64   `gorm:"not null"`
	WhaleTriggered    bool      `gorm:"not null"`
	DetectedAtMs      int64     `gorm:"index;not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (OpportunityRecord) TableName() string { return "opportunities" }

// ExecutionOutcomeRecord is the database model for an ExecutionOutcome.
type ExecutionOutcomeRecord struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	OpportunityID string    `gorm:"type:varchar(64);index;not null"`
	Success       bool      `gorm:"not null"`
	ActualProfit  float64   `gorm:"not null"`
	GasCost       float64   `gorm:"not null"`
	Error         string    `gorm:"type:varchar(512)"`
	TxHash        string    `gorm:"type:varchar(80)"`
	LatencyMs     int64     `gorm:"not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (ExecutionOutcomeRecord) TableName() string { return "execution_outcomes" }

// DeadLetterRecord persists a bus.DeadLetter entry for offline
// inspection, generalizing the same AutoMigrate+Create pattern to the
// bus's failure path.
type DeadLetterRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Stream    string    `gorm:"type:varchar(64);index;not null"`
	Reason    string    `gorm:"type:varchar(512)"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (DeadLetterRecord) TableName() string { return "dead_letters" }

// AuditRecorder persists the opportunity/execution/dead-letter audit
// trail over GORM and MySQL.
type AuditRecorder struct {
	db *gorm.DB
}

// NewAuditRecorder opens a MySQL connection and migrates the schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewAuditRecorder(dsn string) (*AuditRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewAuditRecorderWithDB(db)
}

// NewAuditRecorderWithDB wraps an existing GORM DB instance (used by
// tests with go-sqlmock).
func NewAuditRecorderWithDB(db *gorm.DB) (*AuditRecorder, error) {
	if err := db.AutoMigrate(&OpportunityRecord{}, &ExecutionOutcomeRecord{}, &DeadLetterRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &AuditRecorder{db: db}, nil
}

// RecordOpportunity writes one detected opportunity to the audit trail.
func (r *AuditRecorder) RecordOpportunity(opp types.Opportunity) error {
	record := OpportunityRecord{
		OpportunityID:     opp.ID,
		Type:              string(opp.Type),
		BuyChain:          opp.BuyChain,
		SellChain:         opp.SellChain,
		BuyDex:            opp.BuyDex,
		SellDex:           opp.SellDex,
		AmountIn:          bigIntToString(opp.AmountIn),
		ExpectedProfitUsd: opp.ExpectedProfitUsd,
		ProfitPercentage:  opp.ProfitPercentage,
		GasEstimateUsd:    opp.GasEstimateUsd,
		Confidence:        opp.Confidence,
		WhaleTriggered:    opp.WhaleTriggered,
		DetectedAtMs:      opp.DetectedAtMs,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record opportunity: %w", result.Error)
	}
	return nil
}

// RecordOutcome writes one execution outcome to the audit trail.
func (r *AuditRecorder) RecordOutcome(outcome types.ExecutionOutcome) error {
	record := ExecutionOutcomeRecord{
		OpportunityID: outcome.OpportunityID,
		Success:       outcome.Success,
		ActualProfit:  outcome.ActualProfit,
		GasCost:       outcome.GasCost,
		Error:         outcome.Error,
		TxHash:        outcome.TxHash,
		LatencyMs:     outcome.LatencyMs,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record execution outcome: %w", result.Error)
	}
	return nil
}

// RecordDeadLetter persists a bus dead-letter entry.
func (r *AuditRecorder) RecordDeadLetter(stream, reason, payload string) error {
	record := DeadLetterRecord{Stream: stream, Reason: reason, Payload: payload}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record dead letter: %w", result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *AuditRecorder) GetDB() *gorm.DB { return r.db }

// Close closes the database connection.
func (r *AuditRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// bigIntToString safely converts *big.Int to string, handling nil values.
func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// OutcomesByOpportunity retrieves all recorded outcomes for an opportunity.
func (r *AuditRecorder) OutcomesByOpportunity(opportunityID string) ([]ExecutionOutcomeRecord, error) {
	var records []ExecutionOutcomeRecord
	result := r.db.Where("opportunity_id = ?", opportunityID).Order("created_at ASC").Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get outcomes for opportunity: %w", result.Error)
	}
	return records, nil
}

// OpportunitiesByChain retrieves opportunities detected on a given buy
// chain within a time range.
func (r *AuditRecorder) OpportunitiesByChain(chain string, start, end time.Time) ([]OpportunityRecord, error) {
	var records []OpportunityRecord
	result := r.db.Where("buy_chain = ? AND detected_at_ms BETWEEN ? AND ?", chain, start.UnixMilli(), end.UnixMilli()).
		Order("detected_at_ms ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get opportunities by chain: %w", result.Error)
	}
	return records, nil
}

// CountOpportunities returns the total number of recorded opportunities.
func (r *AuditRecorder) CountOpportunities() (int64, error) {
	var count int64
	result := r.db.Model(&OpportunityRecord{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count opportunities: %w", result.Error)
	}
	return count, nil
}
