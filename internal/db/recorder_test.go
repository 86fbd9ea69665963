package db

import (
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/blackhole-arb/arbcore/internal/types"
)

func newMockRecorder(t *testing.T) (*AuditRecorder, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &AuditRecorder{db: gormDB}, mock
}

func TestAuditRecorder_RecordOpportunity(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `opportunities`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	opp := types.Opportunity{
		ID:                "opp-1",
		Type:              types.OpportunityCrossChain,
		BuyChain:          "ethereum",
		SellChain:         "arbitrum",
		AmountIn:          big.NewInt(1_000_000),
		ExpectedProfitUsd: 25,
		ProfitPercentage:  0.02,
		Confidence:        0.8,
		DetectedAtMs:      1000,
	}

	require.NoError(t, recorder.RecordOpportunity(opp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRecorder_RecordOutcome(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `execution_outcomes`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	outcome := types.ExecutionOutcome{
		OpportunityID: "opp-1",
		Success:       true,
		ActualProfit:  20,
		GasCost:       5,
		TxHash:        "0xabc",
		LatencyMs:     120,
	}

	require.NoError(t, recorder.RecordOutcome(outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRecorder_RecordDeadLetter(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `dead_letters`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, recorder.RecordDeadLetter("stream:opportunities", "backend unavailable", `{"id":"opp-1"}`))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRecorder_OutcomesByOpportunity(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	rows := sqlmock.NewRows([]string{"id", "opportunity_id", "success", "actual_profit", "gas_cost", "error", "tx_hash", "latency_ms", "created_at"}).
		AddRow(1, "opp-1", true, 20.0, 5.0, "", "0xabc", 120, time.Now())
	mock.ExpectQuery("SELECT \\* FROM `execution_outcomes`").WillReturnRows(rows)

	outcomes, err := recorder.OutcomesByOpportunity("opp-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "opp-1", outcomes[0].OpportunityID)
	assert.True(t, outcomes[0].Success)
}

func TestBigIntToString(t *testing.T) {
	assert.Equal(t, "0", bigIntToString(nil))
	assert.Equal(t, "0", bigIntToString(big.NewInt(0)))
	assert.Equal(t, "123456789", bigIntToString(big.NewInt(123456789)))
}

func TestOpportunityRecord_TableName(t *testing.T) {
	assert.Equal(t, "opportunities", OpportunityRecord{}.TableName())
}

func TestExecutionOutcomeRecord_TableName(t *testing.T) {
	assert.Equal(t, "execution_outcomes", ExecutionOutcomeRecord{}.TableName())
}
