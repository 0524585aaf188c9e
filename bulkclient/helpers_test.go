package bulkclient

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/config"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"

	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
	lock   sync.Mutex
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.lock.Lock()
	r.delays = append(r.delays, d)
	r.lock.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func baseConfig(baseURL string) *config.NormalizedConfig {
	cfg := &config.NormalizedConfig{
		BaseURL: baseURL,
		Endpoints: config.ExportEndpoints{
			System:  "$export",
			Patient: "Patient/$export",
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func generateKey(t *testing.T, kid, alg string) *config.JWK {
	pk, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	key, err := config.NewJWK(pk, kid, alg)
	require.NoError(t, err)
	return key
}

func newTestClient(cfg *config.NormalizedConfig, options ...Option) (*Client, *framework.CapturingLogger, *sleepRecorder) {
	logger := &framework.CapturingLogger{}
	sleeper := &sleepRecorder{}
	c := New(cfg, logger, append([]Option{WithSleeper(sleeper.sleep)}, options...)...)
	return c, logger, sleeper
}

func logText(logger *framework.CapturingLogger) string {
	var b strings.Builder
	for _, m := range logger.Output() {
		b.WriteString(m.Message)
		b.WriteString("\n")
	}
	return b.String()
}
