package chefapi

import (
	"context"

	"fridgechef/internal/shared/server/middleware"
)

func withTestRequestID(ctx context.Context, id string) context.Context {
	return middleware.WithRequestID(ctx, id)
}
