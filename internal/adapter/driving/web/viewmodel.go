package web

import (
	"time"

	vm "github.com/ericfisherdev/wabridge/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/wabridge/internal/application"
	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

const pageTitle = "wabridge"

// toPageViewModel converts a connection snapshot to the shell's view model.
func toPageViewModel(state model.ConnectionState) vm.PageViewModel {
	page := vm.PageViewModel{
		Title:     pageTitle,
		Status:    string(state.Status),
		Connected: state.IsOpen(),
		Pairing:   state.Status == model.StatusQRPending,
	}

	switch {
	case page.Connected:
		page.StatusText = application.LogConnected
	case page.Pairing:
		page.StatusText = application.LogQRReceived
	case state.Detail != "":
		page.StatusText = state.Detail
	default:
		page.StatusText = application.LogLoading
	}

	if !state.UpdatedAt.IsZero() {
		page.UpdatedAt = state.UpdatedAt.UTC().Format(time.RFC3339)
	}

	return page
}
