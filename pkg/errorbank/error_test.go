package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		httpCode int
		grpcCode codes.Code
	}{
		{"validation", Validation("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{"not found", NotFound("missing"), http.StatusNotFound, codes.NotFound},
		{"invalid state", InvalidState("nope"), http.StatusConflict, codes.FailedPrecondition},
		{"conflict", Conflict("dup"), http.StatusConflict, codes.AlreadyExists},
		{"serialization", Serialization("enc"), http.StatusInternalServerError, codes.Internal},
		{"internal", Internal("boom"), http.StatusInternalServerError, codes.Internal},
		{"method not allowed", New(KindMethodNotAllowed, "method not allowed"), http.StatusMethodNotAllowed, codes.Unimplemented},
		{"unknown kind", New(Kind("teapot"), "short and stout"), http.StatusInternalServerError, codes.Internal},
		{"nil", nil, http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.httpCode, tt.err.StatusCode())
			assert.Equal(t, tt.grpcCode, tt.err.GRPCCode())
		})
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("db exploded")

	appErr := From(cause)

	require.NotNil(t, appErr)
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.Equal(t, "internal error", appErr.Message())
	assert.ErrorIs(t, appErr, cause)
}

func TestFromKeepsWrappedAppError(t *testing.T) {
	original := NotFound("order not found", WithDetail("id", "abc"))
	wrapped := fmt.Errorf("load: %w", original)

	appErr := From(wrapped)

	assert.Same(t, original, appErr)
	assert.Equal(t, "abc", appErr.Details()["id"])
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindInvalidState))
}

func TestGRPCStatusHidesCause(t *testing.T) {
	err := InvalidState("order already cancelled", WithCause(errors.New("secret detail")))

	st, ok := status.FromError(err)

	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "order already cancelled", st.Message())
}
