package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeFetchFailed, "repo %s unreachable", "https://github.com/a/b")
	if !strings.Contains(err.Error(), "FETCH_FAILED") {
		t.Errorf("Error() = %q, want code prefix", err.Error())
	}
	if !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("Error() = %q, want message", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeNetwork, cause, "query feed")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
		want bool
	}{
		{"matching code", New(ErrCodeRunInProgress, "busy"), ErrCodeRunInProgress, true},
		{"different code", New(ErrCodeNotFound, "gone"), ErrCodeRunInProgress, false},
		{"plain error", stderrors.New("plain"), ErrCodeInternal, false},
		{"wrapped", Wrap(ErrCodeFeedUnavailable, stderrors.New("x"), "feed"), ErrCodeFeedUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeMissingCredential, "no token")); got != ErrCodeMissingCredential {
		t.Errorf("GetCode() = %q, want MISSING_CREDENTIAL", got)
	}
	if got := GetCode(stderrors.New("plain")); got != ErrCodeInternal {
		t.Errorf("GetCode() = %q, want INTERNAL_ERROR fallback", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeInvalidInput, "repo_url is required")
	if got := UserMessage(err); got != "repo_url is required" {
		t.Errorf("UserMessage() = %q", got)
	}
}

func TestWarnf(t *testing.T) {
	w := Warnf(WarnExtraction, "package.json", "unexpected end of JSON input")
	if w.Kind != WarnExtraction || w.Subject != "package.json" {
		t.Errorf("Warnf() = %+v", w)
	}
	if !strings.Contains(w.String(), "package.json") {
		t.Errorf("String() = %q", w.String())
	}
}
