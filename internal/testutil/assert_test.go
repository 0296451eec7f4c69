package testutil

import (
	"net/http/httptest"
	"testing"

	appErr "recruitoj/pkg/errors"
)

func TestHelpers(t *testing.T) {
	AssertEqual(t, 1+1, 2)
	AssertTrue(t, true, "true is true")
	AssertCode(t, appErr.Wrap(appErr.New(appErr.JudgeTimeout), appErr.InternalServerError), appErr.JudgeTimeout)

	w := httptest.NewRecorder()
	w.WriteHeader(200)
	_, _ = w.WriteString(`{"code":10000,"message":"Success","data":{"ok":true},"trace_id":"t-1"}`)
	env := DecodeEnvelope(t, w, 200)
	AssertEqual(t, env.TraceID, "t-1")
	AssertEqual(t, string(env.Data), `{"ok":true}`)
}
