package publish

import (
	"context"

	"autopost/internal/post"
	logx "autopost/pkg/logx"
)

// DryRun reports every post as published without contacting anything.
type DryRun struct {
	log logx.Logger
}

func NewDryRun(log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{log: log}
}

func (d *DryRun) Publish(ctx context.Context, p post.Post) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	d.log.Info("dry-run publish",
		logx.String("post", p.ID),
		logx.String("title", p.Title),
		logx.String("cafe", p.CafeName),
		logx.Int("content_len", len(p.Content)),
	)
	return Success(), nil
}
