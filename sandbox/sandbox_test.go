package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_SuspiciousDependencyIsHighRisk(t *testing.T) {
	result := Scan(Manifest{Dependencies: []string{"left-pad", "some-eval-helper"}})
	assert.Equal(t, RiskHigh, result.Risk)
	assert.True(t, result.HasHighRiskFindings())
	assert.NotEmpty(t, result.Issues)
}

func TestScan_HighRiskPermission(t *testing.T) {
	result := Scan(Manifest{Permissions: []string{"system:admin"}})
	assert.Equal(t, RiskHigh, result.Risk)
}

func TestScan_WarningsOnlyIsMedium(t *testing.T) {
	result := Scan(Manifest{Warnings: []string{"unpinned dependency version"}})
	assert.Equal(t, RiskMedium, result.Risk)
}

func TestScan_CleanManifestIsLow(t *testing.T) {
	result := Scan(Manifest{Dependencies: []string{"left-pad"}, Permissions: []string{"storage:read"}})
	assert.Equal(t, RiskLow, result.Risk)
	assert.False(t, result.HasHighRiskFindings())
}

func TestSandboxedInstall_Success(t *testing.T) {
	result := SandboxedInstall(context.Background(), time.Second, func(ctx context.Context) error { return nil })
	assert.True(t, result.Success)
}

func TestSandboxedInstall_Error(t *testing.T) {
	result := SandboxedInstall(context.Background(), time.Second, func(ctx context.Context) error { return errors.New("boom") })
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
}

func TestSandboxedInstall_Timeout(t *testing.T) {
	result := SandboxedInstall(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.False(t, result.Success)
	assert.Equal(t, "Sandbox timeout", result.Error)
}

func TestSandboxedInstall_Panic(t *testing.T) {
	result := SandboxedInstall(context.Background(), time.Second, func(ctx context.Context) error {
		panic("unexpected")
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unexpected")
}

func TestVerifyIntegrity(t *testing.T) {
	data := []byte("plugin bytes")
	digest := Sha256Hex(data)
	assert.True(t, VerifyIntegrity(data, digest))
	assert.False(t, VerifyIntegrity(data, "deadbeef"))
}

func TestScanPII_DetectsEmailAndCreditCard(t *testing.T) {
	report, err := ScanPII(map[string]any{
		"note": "contact me at jane.doe@example.com, card 4111 1111 1111 1111",
	})
	require.NoError(t, err)
	assert.True(t, report.Detected)
	assert.Greater(t, report.Confidence, 0.0)

	var foundEmail, foundCard bool
	for _, m := range report.Types {
		if m.Type == "email" {
			foundEmail = true
		}
		if m.Type == "credit_card" {
			foundCard = true
		}
		assert.LessOrEqual(t, len(m.Samples), 3)
	}
	assert.True(t, foundEmail)
	assert.True(t, foundCard)
}

func TestScanPII_NoMatches(t *testing.T) {
	report, err := ScanPII(map[string]any{"note": "nothing sensitive here"})
	require.NoError(t, err)
	assert.False(t, report.Detected)
	assert.Equal(t, 0.0, report.Confidence)
}
