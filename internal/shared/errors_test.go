package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAPIError(t *testing.T) {
	t.Run("ClassifyStatus", func(t *testing.T) {
		tc := []struct {
			code int
			want error
		}{
			{http.StatusUnauthorized, ErrAuth},
			{http.StatusForbidden, ErrAuth},
			{http.StatusNotFound, ErrNotFound},
			{http.StatusConflict, ErrConflict},
			{http.StatusInternalServerError, ErrTransport},
			{http.StatusTooManyRequests, ErrTransport},
		}
		for _, tt := range tc {
			if got := ClassifyStatus(tt.code); got != tt.want {
				t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.code, got, tt.want)
			}
		}
	})

	t.Run("unwraps through fmt.Errorf", func(t *testing.T) {
		err := fmt.Errorf("insert my_list: %w", NewAPIError(http.StatusBadGateway, ""))

		if !errors.Is(err, ErrTransport) {
			t.Error("expected ErrTransport in chain")
		}
		if StatusCode(err) != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", StatusCode(err))
		}
		if !strings.Contains(err.Error(), "502 Bad Gateway") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("StatusCode without APIError", func(t *testing.T) {
		if StatusCode(errors.New("boom")) != 0 {
			t.Error("expected 0 for plain errors")
		}
	})
}
