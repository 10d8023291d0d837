package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kc-checkin-bot/internal/domain"
)

type stubRepo struct {
	subs map[int64]domain.Subscriber
}

func (r *stubRepo) Get(tgUserID int64) (domain.Subscriber, error) {
	sub, ok := r.subs[tgUserID]
	if !ok {
		return domain.Subscriber{}, domain.ErrSubscriberNotFound
	}
	return sub, nil
}

func (r *stubRepo) ListAll() ([]domain.Subscriber, error) { return nil, nil }
func (r *stubRepo) Save(sub domain.Subscriber) error {
	r.subs[sub.TGUserID] = sub
	return nil
}
func (r *stubRepo) Delete(tgUserID int64) error {
	delete(r.subs, tgUserID)
	return nil
}

type stubClock struct {
	actions []domain.Action
	err     error
}

func (c *stubClock) RefreshStatus(context.Context, domain.BambooCredential) (string, error) {
	return "", errors.New("не реализовано")
}

func (c *stubClock) PerformClockAction(_ context.Context, _ domain.BambooCredential, action domain.Action) error {
	if c.err != nil {
		return c.err
	}
	c.actions = append(c.actions, action)
	return nil
}

type worklogCall struct {
	started time.Time
	worked  time.Duration
}

type stubWorklog struct {
	calls []worklogCall
	err   error
}

func (w *stubWorklog) AddWorklog(_ context.Context, _ domain.JiraCredential, started time.Time, worked time.Duration) error {
	if w.err != nil {
		return w.err
	}
	w.calls = append(w.calls, worklogCall{started: started, worked: worked})
	return nil
}

type stubNotifier struct {
	texts []string
}

func (n *stubNotifier) SendReminder(int64, domain.Action) (int, error) {
	return 0, errors.New("не реализовано")
}
func (n *stubNotifier) DeleteMessage(int64, int) error { return nil }
func (n *stubNotifier) SendText(_ int64, text string) error {
	n.texts = append(n.texts, text)
	return nil
}

func monday(hour, minute int) time.Time {
	return time.Date(2024, 3, 11, hour, minute, 0, 0, time.UTC)
}

func fullDaySubscriber() domain.Subscriber {
	return domain.Subscriber{
		TGUserID: 7,
		Timezone: "UTC",
		Log: domain.ActionLog{
			domain.ActionDayIn:    monday(9, 0),
			domain.ActionLunchOut: monday(13, 0),
			domain.ActionLunchIn:  monday(14, 0),
			domain.ActionDayOut:   monday(18, 0),
		},
		Bamboo: &domain.BambooCredential{Company: "acme", EmployeeID: "42", APIKey: "k"},
		Jira:   &domain.JiraCredential{BaseURL: "https://jira.local", IssueKey: "OPS-1", Email: "a@b", APIToken: "t"},
	}
}

func job(action domain.Action, at time.Time) domain.MirrorJob {
	return domain.MirrorJob{
		ID:       "job-1",
		TGUserID: 7,
		Action:   action,
		At:       at,
		Source:   domain.MirrorSourceCommand,
	}
}

func TestProcessClockAction(t *testing.T) {
	repo := &stubRepo{subs: map[int64]domain.Subscriber{7: fullDaySubscriber()}}
	clock := &stubClock{}
	svc := NewService(repo, clock, &stubWorklog{}, &stubNotifier{}, zerolog.Nop(), time.Second)

	if err := svc.Process(context.Background(), job(domain.ActionDayIn, monday(9, 0))); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(clock.actions) != 1 || clock.actions[0] != domain.ActionDayIn {
		t.Fatalf("ожидали одну отметку dayin, получили %v", clock.actions)
	}
}

func TestProcessDayOutWritesWorklog(t *testing.T) {
	repo := &stubRepo{subs: map[int64]domain.Subscriber{7: fullDaySubscriber()}}
	worklog := &stubWorklog{}
	svc := NewService(repo, &stubClock{}, worklog, &stubNotifier{}, zerolog.Nop(), time.Second)

	if err := svc.Process(context.Background(), job(domain.ActionDayOut, monday(18, 0))); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(worklog.calls) != 1 {
		t.Fatalf("ожидали один ворклог, получили %d", len(worklog.calls))
	}
	// 9 часов минус час обеда
	if worklog.calls[0].worked != 8*time.Hour {
		t.Fatalf("ожидали 8 часов, получили %v", worklog.calls[0].worked)
	}
}

func TestProcessIncompleteDaySkipsWorklog(t *testing.T) {
	sub := fullDaySubscriber()
	delete(sub.Log, domain.ActionDayIn)
	repo := &stubRepo{subs: map[int64]domain.Subscriber{7: sub}}
	worklog := &stubWorklog{}
	svc := NewService(repo, &stubClock{}, worklog, &stubNotifier{}, zerolog.Nop(), time.Second)

	if err := svc.Process(context.Background(), job(domain.ActionDayOut, monday(18, 0))); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(worklog.calls) != 0 {
		t.Fatalf("без dayin ворклога быть не должно")
	}
}

func TestProcessClockErrorNotifiesSubscriber(t *testing.T) {
	repo := &stubRepo{subs: map[int64]domain.Subscriber{7: fullDaySubscriber()}}
	notifier := &stubNotifier{}
	svc := NewService(repo, &stubClock{err: errors.New("420 лимит запросов")}, &stubWorklog{}, notifier, zerolog.Nop(), time.Second)

	if err := svc.Process(context.Background(), job(domain.ActionDayIn, monday(9, 0))); err != nil {
		t.Fatalf("сбой внешней системы не должен быть ошибкой обработчика: %v", err)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("подписчик должен получить уведомление о сбое, получили %d", len(notifier.texts))
	}
}

func TestProcessUnknownSubscriberDropsJob(t *testing.T) {
	repo := &stubRepo{subs: map[int64]domain.Subscriber{}}
	clock := &stubClock{}
	svc := NewService(repo, clock, &stubWorklog{}, &stubNotifier{}, zerolog.Nop(), time.Second)

	if err := svc.Process(context.Background(), job(domain.ActionDayIn, monday(9, 0))); err != nil {
		t.Fatalf("осиротевшее задание должно молча выбрасываться: %v", err)
	}
	if len(clock.actions) != 0 {
		t.Fatalf("без подписчика отметок быть не должно")
	}
}
