package storage

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

func TestWrapS3Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"typed no such key", &types.NoSuchKey{}, ErrNotFound},
		{"api not found", &smithy.GenericAPIError{Code: "NotFound"}, ErrNotFound},
		{"api access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, ErrAccessDenied},
		{"other api error", &smithy.GenericAPIError{Code: "SlowDown"}, ErrUploadFailed},
		{"plain error", errors.New("network"), ErrUploadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, wrapS3Error(tt.err, ErrUploadFailed), tt.want)
		})
	}
}
