package trigger

import (
	"path"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Префиксы refs от VCS-хоста.
const (
	refHeadsPrefix = "refs/heads/"
	refTagsPrefix  = "refs/tags/"
)

// Evaluate решает, запускает ли событие pipeline.
//
// Чистая синхронная классификация без побочных эффектов и retry:
// событие сверяется с триггерами спецификации, попутно строится
// RunContext для выражений run.*. Возвращает (false, ctx), если
// ни один триггер не совпал — run не создаётся.
func Evaluate(spec *domain.TriggerSpec, event domain.Event) (bool, domain.RunContext) {
	ctx := Classify(event)

	if spec == nil {
		return false, ctx
	}

	switch event.Kind {
	case domain.EventPush:
		return matchPush(spec.Push, ctx), ctx

	case domain.EventPullRequest:
		return matchPullRequest(spec.PullRequest, ctx), ctx

	case domain.EventSchedule:
		// Schedule-события синтезирует планировщик только для pipelines
		// с schedule-триггером, но проверяем на случай прямого вызова.
		return len(spec.Schedule) > 0, ctx

	default:
		return false, ctx
	}
}

// Classify разбирает ref события в RunContext.
func Classify(event domain.Event) domain.RunContext {
	ctx := domain.RunContext{
		Event: event.Kind,
		Ref:   event.Ref,
		SHA:   event.SHA,
	}

	switch {
	case strings.HasPrefix(event.Ref, refTagsPrefix):
		ctx.IsTagPush = event.Kind == domain.EventPush
		ctx.TagName = strings.TrimPrefix(event.Ref, refTagsPrefix)
	case strings.HasPrefix(event.Ref, refHeadsPrefix):
		ctx.Branch = strings.TrimPrefix(event.Ref, refHeadsPrefix)
	default:
		// Голое имя ветки (события от планировщика)
		ctx.Branch = event.Ref
	}

	ctx.IsPush = event.Kind == domain.EventPush

	return ctx
}

// matchPush проверяет push-событие против фильтров.
func matchPush(t *domain.PushTrigger, ctx domain.RunContext) bool {
	if t == nil {
		return false
	}

	if ctx.IsTagPush {
		// Теги запускают только при явном фильтре tags
		return matchAny(t.Tags, ctx.TagName)
	}

	// Пустой branches — любая ветка
	if len(t.Branches) == 0 {
		return ctx.Branch != ""
	}
	return matchAny(t.Branches, ctx.Branch)
}

// matchPullRequest проверяет pull_request-событие против фильтров.
func matchPullRequest(t *domain.PullRequestTrigger, ctx domain.RunContext) bool {
	if t == nil {
		return false
	}
	if len(t.Branches) == 0 {
		return true
	}
	return matchAny(t.Branches, ctx.Branch)
}

// matchAny проверяет имя против списка глобов ("main", "release/*", "v*").
// Невалидный глоб не совпадает ни с чем.
func matchAny(patterns []string, name string) bool {
	if name == "" {
		return false
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
