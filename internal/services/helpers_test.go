package services

import (
	"context"
	"io"
	"log/slog"
	"regexp"

	"github.com/stretchr/testify/mock"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/notify"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testAudit() *audit.Logger {
	return audit.NewLogger(discardLogger)
}

func testNotifier() *notify.Notifier {
	return notify.NewNotifier(notify.NewLogPublisher(discardLogger), "support@example.com")
}

// MockPublisher records queue traffic.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, queue string, body []byte) error {
	args := m.Called(ctx, queue, body)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

func sequentialIDs(ids ...string) IDGenerator {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}
