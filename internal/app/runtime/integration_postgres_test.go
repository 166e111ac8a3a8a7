//go:build integration && postgres

package runtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/app/domain/coopprogram"
	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/config"
	"github.com/coopfund/backoffice/pkg/logger"
)

// Exercises migrations and the loan flow against a real database.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration")
	}

	cfg := config.Default()
	cfg.Database.DSN = dsn
	cfg.Database.AutoMigrate = true
	cfg.Auth.JWTSecret = "integration-secret-integration-secret"
	cfg.Storage.UploadDir = t.TempDir()
	cfg.Schedule.Enabled = false

	ctx := context.Background()
	node, err := NewApplication(ctx, cfg, logger.Discard(), WithoutHTTP())
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Shutdown(ctx) })

	svc := node.App()
	suffix := uuid.NewString()[:8]

	coop, err := svc.Cooperatives.Create(ctx, cooperative.Cooperative{
		Name:           "Integration Federation " + suffix,
		RegistrationNo: "INT-" + suffix,
		Type:           cooperative.TypeTertiary,
	})
	require.NoError(t, err)

	prog, err := svc.Programs.Create(ctx, program.Program{
		Code:         "INT" + suffix,
		Name:         "Integration Loan",
		Kind:         program.KindLoan,
		MaxAmount:    1_000_000,
		InterestRate: 600,
		TermMonths:   6,
		Active:       true,
	})
	require.NoError(t, err)

	cp, err := svc.CoopPrograms.Enroll(ctx, coopprogram.CoopProgram{
		CooperativeID: coop.ID,
		ProgramID:     prog.ID,
		ReferenceNo:   "REF-" + suffix,
		Amount:        600_000,
	})
	require.NoError(t, err)
	assert.Equal(t, coopprogram.StatusPending, cp.Status)

	_, err = svc.CoopPrograms.Approve(ctx, cp.ID)
	require.NoError(t, err)
	released, err := svc.CoopPrograms.Release(ctx, cp.ID, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, coopprogram.StatusReleased, released.Status)

	installments, err := svc.Amortization.List(ctx, cp.ID)
	require.NoError(t, err)
	require.Len(t, installments, 6)
	var principal int64
	for _, inst := range installments {
		principal += inst.Principal
	}
	assert.Equal(t, int64(600_000), principal)

	require.NoError(t, svc.RunJob(ctx, "delinquency"))

	logs, err := svc.SyncLogs.ListSyncLogs(ctx, time.Time{}, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}
