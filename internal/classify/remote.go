package classify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kiri/internal/lane"
	"kiri/internal/llmclient"
)

// RemoteStrategy asks a language model for a verdict. Any transport error,
// rate limit, or unusable output is a tier failure.
type RemoteStrategy struct {
	name    string
	client  llmclient.Client
	timeout time.Duration
	caps    lane.Caps
	logger  *zap.Logger
}

// NewRemoteStrategy wraps client as a tier. timeout bounds the single call.
func NewRemoteStrategy(name string, client llmclient.Client, timeout time.Duration, logger *zap.Logger) *RemoteStrategy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = client.Name()
	}
	return &RemoteStrategy{name: name, client: client, timeout: timeout, caps: lane.PromptCaps, logger: logger}
}

func (r *RemoteStrategy) Name() string { return r.name }

func (r *RemoteStrategy) TryClassify(ctx context.Context, snap *lane.Snapshot) (lane.Verdict, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.client.Generate(ctx, BuildPrompt(snap, r.caps))
	if err != nil {
		r.logger.Warn("remote classifier call failed", zap.String("tier", r.name), zap.Error(err))
		return lane.Verdict{}, false
	}
	v, err := ParseVerdict(out)
	if err != nil {
		r.logger.Warn("remote classifier returned unusable output",
			zap.String("tier", r.name), zap.Int("bytes", len(out)), zap.Error(err))
		return lane.Verdict{}, false
	}
	return v, true
}
