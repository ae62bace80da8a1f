package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func exprContext() *Context {
	ctx := NewContext(domain.RunContext{
		Event:     domain.EventPush,
		Ref:       "refs/heads/main",
		SHA:       "abc123",
		IsPush:    true,
		IsTagPush: false,
		Branch:    "main",
	})
	ctx.Needs["build"] = domain.NeedResult{
		Result:  "SUCCEEDED",
		Outputs: map[string]string{"version": "1.4.2"},
	}
	ctx.Matrix = map[string]string{"os": "linux"}
	ctx.Env = map[string]string{"STAGE": "prod"}
	ctx.AddStepResult("compile", "SUCCEEDED", map[string]string{"artifact": "app.tar.gz"})
	return ctx
}

func TestRender_NoExpressions(t *testing.T) {
	got, err := Render("plain string", exprContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "plain string" {
		t.Errorf("expected unchanged string, got %q", got)
	}
}

func TestRender_References(t *testing.T) {
	ctx := exprContext()

	tests := []struct {
		template string
		expected string
	}{
		{"${{ run.ref }}", "refs/heads/main"},
		{"${{ run.branch }}", "main"},
		{"${{ run.event }}", "push"},
		{"${{ run.is_push }}", "true"},
		{"${{ needs.build.result }}", "SUCCEEDED"},
		{"${{ needs.build.outputs.version }}", "1.4.2"},
		{"${{ matrix.os }}", "linux"},
		{"${{ env.STAGE }}", "prod"},
		{"${{ steps.compile.outputs.artifact }}", "app.tar.gz"},
		{"v${{ needs.build.outputs.version }}-${{ matrix.os }}", "v1.4.2-linux"},
	}

	for _, tt := range tests {
		got, err := Render(tt.template, ctx)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.template, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("%s: expected %q, got %q", tt.template, tt.expected, got)
		}
	}
}

func TestRender_UnknownReference(t *testing.T) {
	ctx := exprContext()

	// Неразрешимая ссылка — ошибка, а не пустая строка
	_, err := Render("${{ needs.build.outputs.missing }}", ctx)
	if !errors.Is(err, ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}

	_, err = Render("${{ needs.nothing.result }}", ctx)
	if !errors.Is(err, ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}
}

func TestRender_Unterminated(t *testing.T) {
	_, err := Render("${{ run.ref", exprContext())
	if !errors.Is(err, ErrExprSyntax) {
		t.Errorf("expected ErrExprSyntax, got %v", err)
	}
}

func TestRender_Secrets(t *testing.T) {
	ctx := exprContext()
	ctx.Secrets = func(name string) (string, bool) {
		if name == "DEPLOY_TOKEN" {
			return "t0ken", true
		}
		return "", false
	}

	got, err := Render("${{ secrets.DEPLOY_TOKEN }}", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "t0ken" {
		t.Errorf("expected t0ken, got %q", got)
	}

	_, err = Render("${{ secrets.MISSING }}", ctx)
	if !errors.Is(err, ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}
}

func TestRender_SecretsUnavailable(t *testing.T) {
	// Вне worker'а источник секретов nil — ссылка не разрешается
	_, err := Render("${{ secrets.DEPLOY_TOKEN }}", exprContext())
	if !errors.Is(err, ErrUnknownReference) {
		t.Errorf("expected ErrUnknownReference, got %v", err)
	}
}

func TestEvalCondition(t *testing.T) {
	ctx := exprContext()

	tests := []struct {
		cond     string
		expected bool
	}{
		{"", true}, // пустое условие — true
		{"true", true},
		{"false", false},
		{"run.is_push", true},
		{"!run.is_tag_push", true},
		{"run.branch == 'main'", true},
		{"run.branch != 'main'", false},
		{"${{ run.branch == 'main' }}", true},
		{"needs.build.result == 'SUCCEEDED'", true},
		{"run.is_push && run.branch == 'main'", true},
		{"run.is_tag_push || run.branch == 'main'", true},
		{"run.is_tag_push && run.branch == 'main'", false},
		{"startsWith(run.ref, 'refs/heads/')", true},
		{"endsWith(run.ref, '/main')", true},
		{"contains(run.ref, 'heads')", true},
		{"startsWith(run.ref, 'refs/tags/')", false},
		{"(run.is_tag_push || run.is_push) && matrix.os == 'linux'", true},
	}

	for _, tt := range tests {
		got, err := EvalCondition(tt.cond, ctx)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.cond, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("%q: expected %v, got %v", tt.cond, tt.expected, got)
		}
	}
}

func TestEvalCondition_NotBoolean(t *testing.T) {
	_, err := EvalCondition("run.branch", exprContext())
	if !errors.Is(err, ErrNotBoolean) {
		t.Errorf("expected ErrNotBoolean, got %v", err)
	}
}

func TestEvalCondition_ShortCircuit(t *testing.T) {
	// Правый операнд не вычисляется — неразрешимая ссылка не мешает
	ctx := exprContext()

	got, err := EvalCondition("run.is_push || needs.nothing.result == 'X'", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("expected true")
	}

	got, err = EvalCondition("run.is_tag_push && needs.nothing.result == 'X'", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("expected false")
	}
}

func TestParseExpr_SyntaxErrors(t *testing.T) {
	bad := []string{
		"run.",
		"== 'main'",
		"run.branch ==",
		"'unterminated",
		"bareword",
		"(run.is_push",
		"startsWith(run.ref,",
	}

	for _, src := range bad {
		if _, err := ParseExpr(src); !errors.Is(err, ErrExprSyntax) {
			t.Errorf("%q: expected ErrExprSyntax, got %v", src, err)
		}
	}
}

func TestEvalCondition_UnknownFunction(t *testing.T) {
	// Имя функции и арность проверяются при вычислении
	_, err := EvalCondition("unknownFn(run.ref)", exprContext())
	if !errors.Is(err, ErrExprSyntax) {
		t.Errorf("expected ErrExprSyntax, got %v", err)
	}

	_, err = EvalCondition("startsWith(run.ref)", exprContext())
	if !errors.Is(err, ErrExprSyntax) {
		t.Errorf("expected ErrExprSyntax, got %v", err)
	}
}

func TestCheckExpressions(t *testing.T) {
	if err := CheckExpressions("v${{ needs.build.outputs.version }}"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckExpressions("no expressions"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckExpressions("${{ run. }}"); err == nil {
		t.Error("expected error for bad expression")
	}
	if err := CheckExpressions("${{ run.ref"); !errors.Is(err, ErrExprSyntax) {
		t.Errorf("expected ErrExprSyntax, got %v", err)
	}
}

func TestCheckCondition(t *testing.T) {
	if err := CheckCondition(""); err != nil {
		t.Errorf("empty condition should be valid: %v", err)
	}
	if err := CheckCondition("${{ run.is_push }}"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckCondition("run.branch =="); err == nil {
		t.Error("expected error")
	}
}

func TestRenderMap(t *testing.T) {
	ctx := exprContext()

	m, err := RenderMap(map[string]string{
		"VERSION": "${{ needs.build.outputs.version }}",
		"STATIC":  "value",
	}, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["VERSION"] != "1.4.2" || m["STATIC"] != "value" {
		t.Errorf("unexpected result: %v", m)
	}

	// Nil на входе — nil на выходе
	m, err = RenderMap(nil, ctx)
	if err != nil || m != nil {
		t.Errorf("expected nil map, got %v, %v", m, err)
	}
}
