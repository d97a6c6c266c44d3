package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

func TestUnaryInterceptorMapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"ok", nil, codes.OK},
		{"not found", errorbank.NotFound("order not found"), codes.NotFound},
		{"wrapped invalid state", fmt.Errorf("cancel: %w", errorbank.InvalidState("order cannot be cancelled")), codes.FailedPrecondition},
		{"validation", errorbank.Validation("tenant id is required"), codes.InvalidArgument},
		{"plain", errors.New("boom"), codes.Internal},
		{"status passthrough", status.Error(codes.Unavailable, "draining"), codes.Unavailable},
	}

	interceptor := UnaryInterceptor(zap.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: "/orderhub.v1.Orders/Get"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
				return nil, tt.err
			})
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}
