package reports_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"restockbot/backend/internal/reports"
)

type MockAlertPublisher struct {
	mock.Mock
}

func (m *MockAlertPublisher) PublishAlert(ctx context.Context, alert reports.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}
