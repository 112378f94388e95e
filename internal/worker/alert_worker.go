package worker

import (
	"github.com/spec-kit/scan-service/internal/service"
)

// StartAlertWorker registers alert handlers.
func StartAlertWorker(alertService *service.AlertService) {
	if alertService == nil {
		return
	}
	alertService.RegisterHandlers()
}
