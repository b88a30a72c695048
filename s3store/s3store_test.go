package s3store

import (
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

func TestIsNoSuchKeyRecognizesTypedError(t *testing.T) {
	if !isNoSuchKey(&types.NoSuchKey{}) {
		t.Fatal("expected a typed NoSuchKey to be recognized")
	}
}

func TestIsNoSuchKeyRecognizes404Response(t *testing.T) {
	err := &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 404}},
	}
	if !isNoSuchKey(err) {
		t.Fatal("expected a 404 ResponseError to be recognized")
	}
}

func TestIsNoSuchKeyRejectsUnrelatedError(t *testing.T) {
	if isNoSuchKey(errors.New("boom")) {
		t.Fatal("an unrelated error should not be recognized as NoSuchKey")
	}
}
