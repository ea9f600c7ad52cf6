package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/audiencia/internal/model"
	"github.com/hitoshi/audiencia/internal/repository"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- モック ---

type mockRegistrationRepo struct {
	createFn func(ctx context.Context, reg model.NewRegistration) (int64, error)
}

func (m *mockRegistrationRepo) Create(ctx context.Context, reg model.NewRegistration) (int64, error) {
	return m.createFn(ctx, reg)
}
func (m *mockRegistrationRepo) List(ctx context.Context, confirmed *bool) ([]model.Registration, error) {
	return nil, nil
}
func (m *mockRegistrationRepo) FindIDByEmail(ctx context.Context, email string) (*int64, error) {
	return nil, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []model.Registration
	err   error
	ctxOK bool
}

func (m *mockNotifier) NotifyRegistered(ctx context.Context, reg model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, reg)
	_, hasDeadline := ctx.Deadline()
	m.ctxOK = ctx.Err() == nil && hasDeadline
	return m.err
}

type mockMetrics struct {
	mu                  sync.Mutex
	created             int
	conflicts           int
	notificationFailure int
}

func (m *mockMetrics) RecordRegistrationCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}
func (m *mockMetrics) RecordRegistrationConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}
func (m *mockMetrics) RecordNotificationFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notificationFailure++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// TestService_Register_Success は登録成功時にIDが返り、通知とメトリクスが記録されることを検証する。
func TestService_Register_Success(t *testing.T) {
	var got model.NewRegistration
	repo := &mockRegistrationRepo{
		createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
			got = reg
			return 42, nil
		},
	}
	notifier := &mockNotifier{}
	metrics := &mockMetrics{}

	svc := NewService(repo, notifier, metrics, discardLogger())

	id, err := svc.Register(context.Background(), RegisterInput{
		Name:      " Ana ",
		Email:     "ana@example.com",
		Phone:     strPtr("11999990000"),
		Confirmed: true,
	})
	svc.Close()

	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	// トリムせず入力どおりに渡すこと
	if got.Name != " Ana " {
		t.Errorf("Name = %q, want %q", got.Name, " Ana ")
	}
	if !got.Confirmed {
		t.Error("Confirmed = false, want true")
	}
	if metrics.created != 1 {
		t.Errorf("created = %d, want 1", metrics.created)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(notifier.calls))
	}
	if notifier.calls[0].ID != 42 || notifier.calls[0].Email != "ana@example.com" {
		t.Errorf("notified registration = %+v", notifier.calls[0])
	}
	if !notifier.ctxOK {
		t.Error("notifier context should be live and carry a deadline")
	}
}

// TestService_Register_MissingFields はnameまたはemailが空の場合にリポジトリを呼ばないことを検証する。
func TestService_Register_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{name: "name空", input: RegisterInput{Email: "a@example.com"}},
		{name: "email空", input: RegisterInput{Name: "Ana"}},
		{name: "両方空", input: RegisterInput{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRegistrationRepo{
				createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
					t.Fatal("Create should not be called")
					return 0, nil
				},
			}
			svc := NewService(repo, nil, nil, discardLogger())

			_, err := svc.Register(context.Background(), tt.input)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
			}
			if apiErr.Code != model.ErrCodeValidation {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
			}
		})
	}
}

// TestService_Register_DuplicateEmail は重複emailが重複エラーに変換され、通知されないことを検証する。
func TestService_Register_DuplicateEmail(t *testing.T) {
	repo := &mockRegistrationRepo{
		createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
			return 0, repository.ErrDuplicateEmail
		},
	}
	notifier := &mockNotifier{}
	metrics := &mockMetrics{}
	svc := NewService(repo, notifier, metrics, discardLogger())

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com"})
	svc.Close()

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != model.ErrCodeDuplicateEmail {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeDuplicateEmail)
	}
	if metrics.conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", metrics.conflicts)
	}
	if len(notifier.calls) != 0 {
		t.Errorf("notifier should not be called, got %d calls", len(notifier.calls))
	}
}

// TestService_Register_StoreError はDBエラーがラップされて返ることを検証する。
func TestService_Register_StoreError(t *testing.T) {
	storeErr := errors.New("connection reset")
	repo := &mockRegistrationRepo{
		createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
			return 0, storeErr
		},
	}
	svc := NewService(repo, nil, nil, discardLogger())

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com"})
	if !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("store error should not be an APIError, got %v", apiErr)
	}
}

// TestService_Register_NotificationFailureIsNotSurfaced は通知失敗が登録結果に影響しないことを検証する。
func TestService_Register_NotificationFailureIsNotSurfaced(t *testing.T) {
	repo := &mockRegistrationRepo{
		createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
			return 7, nil
		},
	}
	notifier := &mockNotifier{err: errors.New("smtp down")}
	metrics := &mockMetrics{}
	svc := NewService(repo, notifier, metrics, discardLogger())

	id, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com"})
	svc.Close()

	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
	if metrics.notificationFailure != 1 {
		t.Errorf("notificationFailure = %d, want 1", metrics.notificationFailure)
	}
}

// TestService_Register_NotificationOutlivesRequest はリクエストのキャンセル後も通知が送られることを検証する。
func TestService_Register_NotificationOutlivesRequest(t *testing.T) {
	repo := &mockRegistrationRepo{
		createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
			return 1, nil
		},
	}
	notifier := &mockNotifier{}
	svc := NewService(repo, notifier, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@example.com"}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	cancel()
	svc.Close()

	if len(notifier.calls) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(notifier.calls))
	}
	if !notifier.ctxOK {
		t.Error("notifier context should not be canceled with the request")
	}
}

// blockingNotifier はコンテキストが終了するまで戻らない。
type blockingNotifier struct{}

func (blockingNotifier) NotifyRegistered(ctx context.Context, reg model.Registration) error {
	<-ctx.Done()
	return ctx.Err()
}

// TestService_Register_NotificationTimeout は送信が上限時間で打ち切られることを検証する。
func TestService_Register_NotificationTimeout(t *testing.T) {
	repo := &mockRegistrationRepo{
		createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
			return 1, nil
		},
	}
	metrics := &mockMetrics{}
	svc := NewService(repo, blockingNotifier{}, metrics, discardLogger())
	svc.timeout = 20 * time.Millisecond

	if _, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com"}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	svc.Close()

	if metrics.notificationFailure != 1 {
		t.Errorf("notificationFailure = %d, want 1", metrics.notificationFailure)
	}
}

// TestService_Register_AfterClose は停止後の登録が保存され、確認メールは送られないことを検証する。
func TestService_Register_AfterClose(t *testing.T) {
	repo := &mockRegistrationRepo{
		createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
			return 11, nil
		},
	}
	notifier := &mockNotifier{}
	metrics := &mockMetrics{}
	svc := NewService(repo, notifier, metrics, discardLogger())

	svc.Close()

	id, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if id != 11 {
		t.Errorf("id = %d, want 11", id)
	}
	if metrics.created != 1 {
		t.Errorf("created = %d, want 1", metrics.created)
	}

	// 2回目のCloseもすぐに戻る
	svc.Close()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.calls) != 0 {
		t.Errorf("notifier calls = %d, want 0", len(notifier.calls))
	}
}

// TestService_CloseConcurrentWithRegister は停止と登録が並行しても競合しないことを検証する。
func TestService_CloseConcurrentWithRegister(t *testing.T) {
	repo := &mockRegistrationRepo{
		createFn: func(ctx context.Context, reg model.NewRegistration) (int64, error) {
			return 1, nil
		},
	}
	notifier := &mockNotifier{}
	svc := NewService(repo, notifier, nil, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com"}); err != nil {
				t.Errorf("Register returned error: %v", err)
			}
		}()
	}
	svc.Close()
	wg.Wait()
	svc.Close()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.calls) > 20 {
		t.Errorf("notifier calls = %d, want at most 20", len(notifier.calls))
	}
}
