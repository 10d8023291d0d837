package checkin

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

func newStubRepo() *stubRepo {
	return &stubRepo{subs: map[int64]domain.Subscriber{}}
}

func (r *stubRepo) Get(tgUserID int64) (domain.Subscriber, error) {
	sub, ok := r.subs[tgUserID]
	if !ok {
		return domain.Subscriber{}, domain.ErrSubscriberNotFound
	}
	return sub, nil
}

func (r *stubRepo) ListAll() ([]domain.Subscriber, error) {
	out := make([]domain.Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	return out, nil
}

func (r *stubRepo) Save(sub domain.Subscriber) error {
	r.subs[sub.TGUserID] = sub
	return nil
}

func (r *stubRepo) Delete(tgUserID int64) error {
	delete(r.subs, tgUserID)
	return nil
}

type stubQueue struct {
	jobs []domain.MirrorJob
	err  error
}

func (q *stubQueue) Enqueue(_ context.Context, job domain.MirrorJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubQueue) Pop(_ context.Context) (domain.MirrorJob, error) {
	return domain.MirrorJob{}, errors.New("не реализовано")
}

func newService(repo *stubRepo, queue domain.MirrorQueue) *Service {
	return NewService(repo, queue, NewLocks(), zerolog.Nop(), "секрет")
}

func TestSubscribe(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo, nil)

	profile := Profile{TGUserID: 7, Username: "ivan", FirstName: "Иван"}
	if err := svc.Subscribe(profile, "секрет"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sub, err := repo.Get(7)
	if err != nil {
		t.Fatalf("подписчик не сохранён: %v", err)
	}
	if sub.Timezone != "UTC" {
		t.Fatalf("ожидали часовой пояс UTC по умолчанию, получили %q", sub.Timezone)
	}
	if err := svc.Subscribe(profile, "секрет"); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("ожидали ErrAlreadySubscribed, получили %v", err)
	}
}

func TestSubscribeWrongPassword(t *testing.T) {
	svc := newService(newStubRepo(), nil)
	if err := svc.Subscribe(Profile{TGUserID: 7}, "не тот"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("ожидали ErrWrongPassword, получили %v", err)
	}
}

func TestRecordActionStampsUTC(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{TGUserID: 7, Timezone: "Asia/Baku", Log: domain.ActionLog{}}
	svc := newService(repo, nil)

	loc, _ := time.LoadLocation("Asia/Baku")
	at := time.Date(2024, 3, 11, 9, 15, 0, 0, loc)
	sub, err := svc.RecordAction(context.Background(), 7, domain.ActionDayIn, at, domain.MirrorSourceCommand)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got := sub.Log[domain.ActionDayIn]
	if got.Location() != time.UTC {
		t.Fatalf("отметка должна храниться в UTC, получили %v", got.Location())
	}
	if !got.Equal(at) {
		t.Fatalf("отметка сместилась: %v != %v", got, at)
	}
}

func TestRecordActionUnknownSubscriber(t *testing.T) {
	svc := newService(newStubRepo(), nil)
	_, err := svc.RecordAction(context.Background(), 404, domain.ActionDayIn, time.Now(), domain.MirrorSourceCommand)
	if !errors.Is(err, domain.ErrSubscriberNotFound) {
		t.Fatalf("ожидали ErrSubscriberNotFound, получили %v", err)
	}
}

func TestRecordActionEnqueuesMirrorJob(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{
		TGUserID: 7,
		Timezone: "UTC",
		Log:      domain.ActionLog{},
		Bamboo:   &domain.BambooCredential{Company: "acme", EmployeeID: "42", APIKey: "k"},
	}
	queue := &stubQueue{}
	svc := newService(repo, queue)

	if _, err := svc.RecordAction(context.Background(), 7, domain.ActionLunchOut, time.Now(), domain.MirrorSourceCallback); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("ожидали одно задание зеркалирования, получили %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.TGUserID != 7 || job.Action != domain.ActionLunchOut || job.Source != domain.MirrorSourceCallback {
		t.Fatalf("неверное задание: %+v", job)
	}
	if job.ID == "" {
		t.Fatalf("у задания должен быть идентификатор")
	}
}

func TestRecordActionSkipsMirrorWithoutCredentials(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{TGUserID: 7, Timezone: "UTC", Log: domain.ActionLog{}}
	queue := &stubQueue{}
	svc := newService(repo, queue)

	if _, err := svc.RecordAction(context.Background(), 7, domain.ActionDayIn, time.Now(), domain.MirrorSourceCommand); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("без учётных данных заданий быть не должно, получили %d", len(queue.jobs))
	}
}

func TestRecordActionJiraOnlyOnDayOut(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{
		TGUserID: 7,
		Timezone: "UTC",
		Log:      domain.ActionLog{},
		Jira:     &domain.JiraCredential{BaseURL: "https://jira.local", IssueKey: "OPS-1", Email: "a@b", APIToken: "t"},
	}
	queue := &stubQueue{}
	svc := newService(repo, queue)

	if _, err := svc.RecordAction(context.Background(), 7, domain.ActionDayIn, time.Now(), domain.MirrorSourceCommand); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("dayin не должен зеркалироваться только ради Jira")
	}
	if _, err := svc.RecordAction(context.Background(), 7, domain.ActionDayOut, time.Now(), domain.MirrorSourceCommand); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("dayout с Jira должен дать задание, получили %d", len(queue.jobs))
	}
}

func TestRecordActionQueueErrorDoesNotFail(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{
		TGUserID: 7,
		Timezone: "UTC",
		Log:      domain.ActionLog{},
		Bamboo:   &domain.BambooCredential{Company: "acme", EmployeeID: "42", APIKey: "k"},
	}
	queue := &stubQueue{err: errors.New("брокер недоступен")}
	svc := newService(repo, queue)

	sub, err := svc.RecordAction(context.Background(), 7, domain.ActionDayIn, time.Now(), domain.MirrorSourceCommand)
	if err != nil {
		t.Fatalf("ошибка очереди не должна ломать отметку: %v", err)
	}
	if _, ok := sub.Log[domain.ActionDayIn]; !ok {
		t.Fatalf("отметка должна быть сохранена несмотря на очередь")
	}
}

func TestResetActions(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{
		TGUserID: 7,
		Timezone: "UTC",
		Log:      domain.ActionLog{domain.ActionDayIn: time.Now().UTC()},
	}
	svc := newService(repo, nil)

	sub, err := svc.ResetActions(7)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(sub.Log) != 0 {
		t.Fatalf("журнал должен быть пуст, получили %d отметок", len(sub.Log))
	}
}

func TestSetTimezone(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{TGUserID: 7, Timezone: "UTC", Log: domain.ActionLog{}}
	svc := newService(repo, nil)

	if err := svc.SetTimezone(7, "europe/amsterdam"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sub, _ := repo.Get(7)
	if sub.Timezone != "Europe/Amsterdam" {
		t.Fatalf("ожидали Europe/Amsterdam, получили %q", sub.Timezone)
	}
	if err := svc.SetTimezone(7, "Луна/Кратер"); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ожидали ErrInvalidTimezone, получили %v", err)
	}
}

func TestSetWeekdaySchedule(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{TGUserID: 7, Timezone: "UTC", Log: domain.ActionLog{}}
	svc := newService(repo, nil)

	slot := &domain.DaySchedule{DayIn: 9 * 60, LunchOut: 13 * 60, DayOut: 18 * 60}
	if err := svc.SetWeekdaySchedule(7, 0, slot); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sub, _ := repo.Get(7)
	if sub.Schedule[0] == nil || sub.Schedule[0].DayIn != 9*60 {
		t.Fatalf("слот понедельника не сохранён: %+v", sub.Schedule[0])
	}

	if err := svc.SetWeekdaySchedule(7, 0, nil); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sub, _ = repo.Get(7)
	if sub.Schedule[0] != nil {
		t.Fatalf("слот должен быть очищен")
	}

	if err := svc.SetWeekdaySchedule(7, 9, slot); err == nil {
		t.Fatalf("ожидали ошибку для индекса вне диапазона")
	}
}

func TestClearBambooCredentialDropsMirrorStatus(t *testing.T) {
	repo := newStubRepo()
	repo.subs[7] = domain.Subscriber{
		TGUserID:        7,
		Timezone:        "UTC",
		Log:             domain.ActionLog{},
		Bamboo:          &domain.BambooCredential{Company: "acme", EmployeeID: "42", APIKey: "k"},
		MirrorStatus:    "in",
		MirrorCheckedAt: time.Now().UTC(),
	}
	svc := newService(repo, nil)

	if err := svc.ClearBambooCredential(7); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sub, _ := repo.Get(7)
	if sub.Bamboo != nil || sub.MirrorStatus != "" || !sub.MirrorCheckedAt.IsZero() {
		t.Fatalf("доступ и статус должны быть сброшены: %+v", sub)
	}
}

func TestNormalizeTimezone(t *testing.T) {
	cases := map[string]string{
		"UTC":              "UTC",
		"Asia/Baku":        "Asia/Baku",
		"europe/amsterdam": "Europe/Amsterdam",
		"america/new_york": "America/New_York",
	}
	for raw, want := range cases {
		got, err := normalizeTimezone(raw)
		if err != nil {
			t.Fatalf("%q: не ожидали ошибку: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%q: ожидали %q, получили %q", raw, want, got)
		}
	}
	for _, raw := range []string{"", "Луна/Кратер", "Europe"} {
		if _, err := normalizeTimezone(raw); !errors.Is(err, ErrInvalidTimezone) {
			t.Fatalf("%q: ожидали ErrInvalidTimezone, получили %v", raw, err)
		}
	}
}
