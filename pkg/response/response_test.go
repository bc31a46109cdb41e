package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCodeFor(t *testing.T) {
	tests := map[int]string{
		http.StatusGone:                CodeGone,
		http.StatusTooManyRequests:     CodeTooManyRequests,
		http.StatusTeapot:              CodeBadRequest,
		http.StatusBadGateway:          CodeInternal,
		http.StatusServiceUnavailable:  CodeUnavailable,
		http.StatusInternalServerError: CodeInternal,
	}
	for status, want := range tests {
		if got := CodeFor(status); got != want {
			t.Errorf("CodeFor(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestAbortStopsChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	reached := false
	r.GET("/", func(c *gin.Context) {
		Abort(c, http.StatusForbidden, "guests cannot do that")
	}, func(c *gin.Context) {
		reached = true
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if reached {
		t.Error("handler after Abort ran")
	}
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusForbidden || body.Success || body.Error == nil || body.Error.Code != CodeForbidden {
		t.Errorf("got %d %+v", w.Code, body)
	}
}
