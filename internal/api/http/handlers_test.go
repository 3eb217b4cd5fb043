package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/appsync"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/host"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/install"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", microapp.ErrAppNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: x", host.ErrNotRunnable), http.StatusConflict},
		{fmt.Errorf("%w: x", host.ErrNotLocal), http.StatusConflict},
		{fmt.Errorf("%w: x", install.ErrBusy), http.StatusConflict},
		{fmt.Errorf("%w: x", appsync.ErrNoDownloadURL), http.StatusUnprocessableEntity},
		{install.ErrInvalidAppID, http.StatusUnprocessableEntity},
		{fmt.Errorf("install: %w", install.ErrNotZip), http.StatusBadGateway},
		{install.ErrEntryNotFound, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestNonNil(t *testing.T) {
	assert.Equal(t, []string{}, nonNil(nil))
	assert.Equal(t, []string{"a"}, nonNil([]string{"a"}))
}
